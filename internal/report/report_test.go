package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guotingchao/DeltaTransactionSystem/internal/analyzer"
)

func analyzed(name, category string, price, avg int64, change float64) analyzer.AnalyzedItem {
	return analyzer.AnalyzedItem{
		Name:          name,
		Category:      category,
		Price:         decimal.NewFromInt(price),
		Avg24h:        decimal.NewFromInt(avg),
		ChangePercent: decimal.NewFromFloat(change).Round(2),
	}
}

func TestComposeSingleMessage(t *testing.T) {
	composer := NewComposer(Options{})
	analysis := analyzer.MarketAnalysis{
		AllItems: []analyzer.AnalyzedItem{
			analyzed("步枪A", "枪械", 120, 100, 5.5),
			analyzed("钥匙B", "钥匙", 900, 1000, -8.25),
		},
		TotalItems: 2,
	}

	messages := composer.Compose(analysis, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC))

	if len(messages) != 1 {
		t.Fatalf("小报告应单条发送, 实际 %d 条", len(messages))
	}
	msg := messages[0]
	if !strings.Contains(msg, "监控物品: **2** 件") {
		t.Fatalf("消息头应包含监控数量: %s", msg)
	}
	if !strings.Contains(msg, "步枪A") || !strings.Contains(msg, "钥匙B") {
		t.Fatalf("消息应包含两个物品")
	}
	if !strings.Contains(msg, "+5.50%") {
		t.Fatalf("涨幅应带符号并保留两位小数: %s", msg)
	}
	if !strings.Contains(msg, "-8.25%") {
		t.Fatalf("跌幅应保留两位小数: %s", msg)
	}
	if strings.Count(msg, "数据来源") != 1 {
		t.Fatalf("落款应出现且仅出现一次")
	}
}

func TestComposeHighVolatilitySection(t *testing.T) {
	composer := NewComposer(Options{Mention: "老板"})
	analysis := analyzer.MarketAnalysis{
		AllItems: []analyzer.AnalyzedItem{
			analyzed("火箭", "枪械", 125, 100, 25),
			analyzed("平稳", "枪械", 101, 100, 1),
		},
		TotalItems: 2,
	}

	messages := composer.Compose(analysis, time.Now().UTC())
	msg := messages[0]

	if !strings.Contains(msg, "**@老板**") {
		t.Fatalf("高波动时应 @ 提醒: %s", msg)
	}
	if !strings.Contains(msg, "发现 **1** 个物品波动剧烈") {
		t.Fatalf("应报告全部达标数量: %s", msg)
	}
	if !strings.Contains(msg, "**+25.00%**") {
		t.Fatalf("达标涨幅应加粗: %s", msg)
	}
	if !strings.Contains(msg, "🔥") {
		t.Fatalf("达标物品行应带标记")
	}
}

func TestComposeNoVolatilityNoMention(t *testing.T) {
	composer := NewComposer(Options{Mention: "老板"})
	analysis := analyzer.MarketAnalysis{
		AllItems: []analyzer.AnalyzedItem{
			analyzed("平稳", "枪械", 101, 100, 1),
		},
		TotalItems: 1,
	}

	messages := composer.Compose(analysis, time.Now().UTC())
	if strings.Contains(messages[0], "@老板") {
		t.Fatalf("无高波动物品时不应 @ 提醒")
	}
}

func TestComposeProfitShownOnlyWhenPositive(t *testing.T) {
	composer := NewComposer(Options{})
	analysis := analyzer.MarketAnalysis{
		AllItems: []analyzer.AnalyzedItem{
			// 120*0.85-100 = 2 → shown
			analyzed("有利可图", "枪械", 120, 100, 19.9),
			// 110*0.85-100 = -6.5 → hidden
			analyzed("无利可图", "枪械", 110, 100, 10),
			// loser: 100*0.85-60 = 25 → shown
			analyzed("抄底", "钥匙", 60, 100, -40),
		},
		TotalItems: 3,
	}

	joined := strings.Join(composer.Compose(analysis, time.Now().UTC()), "")

	if !strings.Contains(joined, "有利可图 | 120") || !strings.Contains(joined, "(💰2)") {
		t.Fatalf("正利润应展示利润额: %s", joined)
	}
	if strings.Contains(joined, "无利可图 | 110 | <font color=\"warning\">+10.00%</font> (💰") {
		t.Fatalf("负利润不应展示利润额")
	}
	if !strings.Contains(joined, "(💰25)") {
		t.Fatalf("跌势抄底利润应展示: %s", joined)
	}
}

func TestComposePacksUnderByteLimit(t *testing.T) {
	const limit = 700
	composer := NewComposer(Options{ByteLimit: limit})

	categories := []string{"枪械", "子弹", "钥匙", "收集品"}
	var items []analyzer.AnalyzedItem
	for i, cat := range categories {
		for j := 0; j < 4; j++ {
			name := fmt.Sprintf("物品-%s-%d", cat, j)
			change := float64(10 - i - j)
			if j%2 == 1 {
				change = -change
			}
			items = append(items, analyzed(name, cat, 1000+int64(i*100+j), 1000, change))
		}
	}
	analysis := analyzer.MarketAnalysis{AllItems: items, TotalItems: len(items)}

	messages := composer.Compose(analysis, time.Now().UTC())

	if len(messages) < 2 {
		t.Fatalf("超出字节上限时应拆分为多条, 实际 %d 条", len(messages))
	}
	for i, msg := range messages {
		if len(msg) > limit {
			t.Fatalf("第 %d 条消息超出上限: %d > %d", i+1, len(msg), limit)
		}
	}

	joined := strings.Join(messages, "")
	for _, item := range items {
		if strings.Count(joined, item.Name) != 1 {
			t.Fatalf("物品 %s 应恰好出现一次, 实际 %d 次", item.Name, strings.Count(joined, item.Name))
		}
	}
	if strings.Count(joined, "数据来源") != 1 {
		t.Fatalf("落款应仅出现一次")
	}
	if !strings.HasSuffix(messages[len(messages)-1], footer) {
		t.Fatalf("落款应追加在最后一条消息")
	}
}

func TestComposeEmptyCategoriesProduceNoSections(t *testing.T) {
	composer := NewComposer(Options{})
	analysis := analyzer.MarketAnalysis{
		AllItems: []analyzer.AnalyzedItem{
			analyzed("枪", "枪械", 120, 100, 20),
		},
		TotalItems: 1,
	}

	joined := strings.Join(composer.Compose(analysis, time.Now().UTC()), "")
	if strings.Contains(joined, "💊 弹药补给") || strings.Contains(joined, "🔑 房卡钥匙") {
		t.Fatalf("无数据的分类不应产生段落: %s", joined)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[string]string{
		"950":        "950",
		"1234":       "1,234",
		"1234567":    "1,234,567",
		"1234567.50": "1,234,567.50",
	}
	for in, want := range cases {
		price, err := decimal.NewFromString(in)
		if err != nil {
			t.Fatal(err)
		}
		if got := formatPrice(price); got != want {
			t.Fatalf("formatPrice(%s) = %s, 期望 %s", in, got, want)
		}
	}
}
