package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotOptions parameterise the bulk snapshot fetcher.
type SnapshotOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Snapshot fetches the bulk price feed over HTTP.
type Snapshot struct {
	opts   SnapshotOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSnapshot constructs a snapshot fetcher.
func NewSnapshot(opts SnapshotOptions, logger zerolog.Logger) *Snapshot {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Snapshot{
		opts:   opts,
		logger: logger.With().Str("component", "snapshot_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchSnapshot retrieves one bulk snapshot. A body that is not a JSON array
// is a hard error: a partial or malformed feed must abort the tick before
// any state is written.
func (s *Snapshot) FetchSnapshot(ctx context.Context) ([]RawItem, error) {
	if s.opts.URL == "" {
		return nil, errors.New("snapshot source url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("snapshot feed returned non-array payload")
	}

	var items []RawItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	s.logger.Debug().Int("items", len(items)).Msg("snapshot fetched")
	return items, nil
}

func parseHTTPError(status int, payload []byte) error {
	if len(payload) > 256 {
		payload = payload[:256]
	}
	if len(payload) > 0 {
		return fmt.Errorf("snapshot feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("snapshot feed error (%d)", status)
}

var _ SnapshotFetcher = (*Snapshot)(nil)
