package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWeComNotifierSuccess(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "errmsg": "ok"})
	}))
	defer srv.Close()

	notifier := NewWeComNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), "## 测试"); err != nil {
		t.Fatalf("WeCom Notify 应成功: %v", err)
	}

	if received["msgtype"] != "markdown" {
		t.Fatalf("msgtype 不正确: %#v", received)
	}
	markdown, ok := received["markdown"].(map[string]any)
	if !ok || markdown["content"] != "## 测试" {
		t.Fatalf("markdown.content 不正确: %#v", received)
	}
}

func TestWeComNotifierErrcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 93000, "errmsg": "invalid webhook url"})
	}))
	defer srv.Close()

	notifier := NewWeComNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), "content"); err == nil {
		t.Fatal("非零 errcode 应报错")
	}
}

func TestWeComNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWeComNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), "content"); err == nil {
		t.Fatal("HTTP 502 应报错")
	}
}

type flakyNotifier struct {
	calls  int
	failAt int
}

func (f *flakyNotifier) Notify(ctx context.Context, content string) error {
	f.calls++
	if f.calls == f.failAt {
		return context.DeadlineExceeded
	}
	return nil
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	notifier := &flakyNotifier{failAt: 2}
	messages := []string{"part1", "part2", "part3"}

	sent := Dispatch(context.Background(), notifier, messages, 0, testLogger())

	if notifier.calls != 3 {
		t.Fatalf("失败后应继续发送剩余消息, 实际调用 %d 次", notifier.calls)
	}
	if sent != 2 {
		t.Fatalf("应统计成功 2 条, 实际 %d", sent)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
