package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSnapshotFetchMissingURL(t *testing.T) {
	s := NewSnapshot(SnapshotOptions{}, noopLogger())
	if _, err := s.FetchSnapshot(context.Background()); err == nil {
		t.Fatal("未配置 URL 时应返回错误")
	}
}

func TestSnapshotFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"is_get_time":1700000000,"name":"A","price":100,"secondClassCN":"枪械"}]`))
	}))
	defer srv.Close()

	s := NewSnapshot(SnapshotOptions{URL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	items, err := s.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("期望 1 条记录, 实际 %d", len(items))
	}
	got := items[0]
	if got.ID != 1 || got.Name != "A" || got.Category != "枪械" {
		t.Fatalf("记录字段不正确: %+v", got)
	}
	if !got.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("价格解析错误: %s", got.Price)
	}
	if got.GetTime != 1700000000 {
		t.Fatalf("is_get_time 解析错误: %d", got.GetTime)
	}
}

func TestSnapshotFetchNonArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer srv.Close()

	s := NewSnapshot(SnapshotOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := s.FetchSnapshot(context.Background()); err == nil {
		t.Fatal("非数组响应应报错")
	}
}

func TestSnapshotFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSnapshot(SnapshotOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := s.FetchSnapshot(context.Background()); err == nil {
		t.Fatal("HTTP 500 应报错")
	}
}
