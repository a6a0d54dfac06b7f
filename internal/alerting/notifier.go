package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// WeComNotifier 通过企业微信群机器人 webhook 推送 markdown 消息。
type WeComNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewWeComNotifier 构造企业微信告警器。
func NewWeComNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *WeComNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WeComNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_wecom").Logger(),
	}
}

type wecomPayload struct {
	MsgType  string        `json:"msgtype"`
	Markdown wecomMarkdown `json:"markdown"`
}

type wecomMarkdown struct {
	Content string `json:"content"`
}

type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify 推送一条 markdown 消息；响应体中非零 errcode 视为投递失败。
func (n *WeComNotifier) Notify(ctx context.Context, content string) error {
	payload := wecomPayload{
		MsgType:  "markdown",
		Markdown: wecomMarkdown{Content: content},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal wecom payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create wecom request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send wecom request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wecom 响应码异常: %d", resp.StatusCode)
	}

	var result wecomResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if result.ErrCode != 0 {
			return fmt.Errorf("wecom errcode=%d: %s", result.ErrCode, result.ErrMsg)
		}
	}

	n.logger.Debug().Int("bytes", len(content)).Msg("告警已发送 (WeCom)")
	return nil
}

var _ Notifier = (*WeComNotifier)(nil)
