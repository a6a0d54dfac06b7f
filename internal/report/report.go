// Package report renders a market analysis into WeCom markdown messages,
// splitting output across multiple payloads under a byte ceiling.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guotingchao/DeltaTransactionSystem/internal/analyzer"
)

const (
	divider = "--------------------------------"
	footer  = `<font color="comment">数据来源: Gzc三角洲量化交易</font>`
)

// CategoryBucket groups raw category tags under one report section.
type CategoryBucket struct {
	Title string
	Tags  []string
}

// DefaultCategories returns the fixed report sections in display order.
func DefaultCategories() []CategoryBucket {
	return []CategoryBucket{
		{Title: "🔫 武器配件", Tags: []string{"枪械", "头盔", "护甲", "配件", "弹匣"}},
		{Title: "💊 弹药补给", Tags: []string{"子弹", "消耗品"}},
		{Title: "🔑 房卡钥匙", Tags: []string{"钥匙"}},
		{Title: "💎 稀有藏品", Tags: []string{"收集品"}},
	}
}

// Options tune report content and packing.
type Options struct {
	// ThresholdPct flags an item as high volatility when |change| meets it.
	ThresholdPct decimal.Decimal
	// FeeRate is deducted from the sell side of the profit estimate.
	FeeRate decimal.Decimal
	// VolatilityTop caps how many high-volatility items are displayed.
	VolatilityTop int
	// TopSize caps per-category gainer and loser tables.
	TopSize int
	// ByteLimit is the transport's payload ceiling per message.
	ByteLimit int
	// Mention, when set, is @-pinged in the high-volatility section.
	Mention string
	// Location is the display timezone of the header timestamp.
	Location *time.Location
	// Categories defines the section order; DefaultCategories when empty.
	Categories []CategoryBucket
}

// Composer renders analyses into size-bounded markdown messages.
type Composer struct {
	opts Options
}

// NewComposer builds a Composer, filling unset options with defaults.
func NewComposer(opts Options) *Composer {
	if opts.ThresholdPct.IsZero() {
		opts.ThresholdPct = decimal.NewFromInt(20)
	}
	if opts.FeeRate.IsZero() {
		opts.FeeRate = decimal.NewFromFloat(0.15)
	}
	if opts.VolatilityTop <= 0 {
		opts.VolatilityTop = 10
	}
	if opts.TopSize <= 0 {
		opts.TopSize = 5
	}
	if opts.ByteLimit <= 0 {
		opts.ByteLimit = 4096
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories()
	}
	return &Composer{opts: opts}
}

// Compose renders the analysis as one or more messages, each within the
// byte ceiling. Sections are assembled greedily in fixed order and never
// split mid-section; the footer lands on the last message.
func (c *Composer) Compose(analysis analyzer.MarketAnalysis, now time.Time) []string {
	sections := []string{c.headerSection(analysis, now)}
	for _, bucket := range c.opts.Categories {
		if section := c.categorySection(bucket, analysis.AllItems); section != "" {
			sections = append(sections, section)
		}
	}

	messages := pack(sections, c.opts.ByteLimit)

	last := len(messages) - 1
	suffix := "\n" + footer
	if len(messages[last])+len(suffix) <= c.opts.ByteLimit {
		messages[last] += suffix
	} else {
		messages = append(messages, footer)
	}
	return messages
}

// pack greedily concatenates sections, starting a new message whenever the
// next section would push the current one past the limit. A single section
// larger than the limit is emitted on its own rather than split.
func pack(sections []string, limit int) []string {
	messages := make([]string, 0, 1)
	current := ""
	for _, section := range sections {
		if current == "" {
			current = section
			continue
		}
		if len(current)+len(section) > limit {
			messages = append(messages, current)
			current = section
			continue
		}
		current += section
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}

func (c *Composer) headerSection(analysis analyzer.MarketAnalysis, now time.Time) string {
	var b strings.Builder
	b.WriteString("## 📊 三角洲市场监控日报\n")
	b.WriteString(fmt.Sprintf("<font color=\"comment\">%s</font>\n", now.In(c.opts.Location).Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("> 📦 监控物品: **%d** 件\n", analysis.TotalItems))
	b.WriteString(divider + "\n")

	volatile := c.highVolatility(analysis.AllItems)
	if len(volatile) == 0 {
		return b.String()
	}

	b.WriteString("\n⚠️ <font color=\"warning\">**老板，一定要关注下！**</font>")
	if c.opts.Mention != "" {
		b.WriteString(fmt.Sprintf(" **@%s**", c.opts.Mention))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("> 发现 **%d** 个物品波动剧烈 (展示 Top %d)：\n\n", len(volatile), c.opts.VolatilityTop))

	display := volatile
	if len(display) > c.opts.VolatilityTop {
		display = display[:c.opts.VolatilityTop]
	}
	for _, item := range display {
		icon := "💸"
		if item.ChangePercent.IsPositive() {
			icon = "🚀"
		}
		b.WriteString(fmt.Sprintf("> %s **%s**\n", icon, item.Name))
		b.WriteString(fmt.Sprintf("> 现价: %s | <font color=\"warning\">**%s**</font>\n\n", formatPrice(item.Price), signedPercent(item.ChangePercent)))
	}
	b.WriteString(divider + "\n")
	return b.String()
}

// highVolatility filters and ranks items at or above the threshold, by
// absolute change, largest first.
func (c *Composer) highVolatility(items []analyzer.AnalyzedItem) []analyzer.AnalyzedItem {
	volatile := make([]analyzer.AnalyzedItem, 0)
	for _, item := range items {
		if item.ChangePercent.Abs().GreaterThanOrEqual(c.opts.ThresholdPct) {
			volatile = append(volatile, item)
		}
	}
	sort.SliceStable(volatile, func(i, j int) bool {
		return volatile[i].ChangePercent.Abs().GreaterThan(volatile[j].ChangePercent.Abs())
	})
	return volatile
}

func (c *Composer) categorySection(bucket CategoryBucket, all []analyzer.AnalyzedItem) string {
	tags := make(map[string]struct{}, len(bucket.Tags))
	for _, tag := range bucket.Tags {
		tags[tag] = struct{}{}
	}

	gainers := make([]analyzer.AnalyzedItem, 0)
	losers := make([]analyzer.AnalyzedItem, 0)
	// all is already sorted descending by change, so gainers come out
	// best-first and losers are collected worst-last then reversed.
	for _, item := range all {
		if _, ok := tags[item.Category]; !ok {
			continue
		}
		if item.ChangePercent.IsPositive() && len(gainers) < c.opts.TopSize {
			gainers = append(gainers, item)
		}
		if item.ChangePercent.IsNegative() {
			losers = append(losers, item)
		}
	}
	if len(losers) > c.opts.TopSize {
		losers = losers[len(losers)-c.opts.TopSize:]
	}
	for i, j := 0, len(losers)-1; i < j; i, j = i+1, j-1 {
		losers[i], losers[j] = losers[j], losers[i]
	}

	if len(gainers) == 0 && len(losers) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("### %s\n", bucket.Title))
	if len(gainers) > 0 {
		b.WriteString(fmt.Sprintf("**📈 %s涨幅榜**\n%s\n", bucket.Title, c.formatTable(gainers)))
	}
	if len(losers) > 0 {
		b.WriteString(fmt.Sprintf("**📉 %s跌幅榜**\n%s\n", bucket.Title, c.formatTable(losers)))
	}
	return b.String()
}

func (c *Composer) formatTable(items []analyzer.AnalyzedItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		color := "comment"
		if item.ChangePercent.IsPositive() {
			color = "warning"
		} else if item.ChangePercent.IsNegative() {
			color = "info"
		}

		bold := item.ChangePercent.Abs().GreaterThanOrEqual(c.opts.ThresholdPct)
		changeStr := signedPercent(item.ChangePercent)
		if bold {
			changeStr = "**" + changeStr + "**"
		}

		line := fmt.Sprintf("> %s | %s | <font color=%q>%s</font>", item.Name, formatPrice(item.Price), color, changeStr)
		if profit := c.netProfit(item); profit.IsPositive() {
			line += fmt.Sprintf(" (💰%s)", profit.Round(0).String())
		}
		if bold {
			line += " 🔥"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// netProfit estimates the gain of riding the move, with the exchange fee
// taken out of the sell side. Gainers: buy at the average, sell now.
// Losers: buy now, sell back at the average.
func (c *Composer) netProfit(item analyzer.AnalyzedItem) decimal.Decimal {
	keep := decimal.NewFromInt(1).Sub(c.opts.FeeRate)
	if item.ChangePercent.IsPositive() {
		return item.Price.Mul(keep).Sub(item.Avg24h)
	}
	return item.Avg24h.Mul(keep).Sub(item.Price)
}

func signedPercent(change decimal.Decimal) string {
	if change.IsPositive() {
		return "+" + change.StringFixed(2) + "%"
	}
	return change.StringFixed(2) + "%"
}

// formatPrice renders a price with thousands separators.
func formatPrice(price decimal.Decimal) string {
	fixed := price.StringFixed(2)
	fixed = strings.TrimSuffix(fixed, ".00")

	neg := strings.HasPrefix(fixed, "-")
	if neg {
		fixed = fixed[1:]
	}

	intPart := fixed
	fracPart := ""
	if idx := strings.IndexByte(fixed, '.'); idx >= 0 {
		intPart, fracPart = fixed[:idx], fixed[idx:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
		if len(intPart) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			b.WriteByte(',')
		}
	}
	b.WriteString(fracPart)
	return b.String()
}
