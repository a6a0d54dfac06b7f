package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Dispatch sends each message in order, logging per-message success or
// failure. One failed delivery never aborts the remainder; a short pause
// between messages respects the webhook's rate limit.
func Dispatch(ctx context.Context, notifier Notifier, messages []string, delay time.Duration, logger zerolog.Logger) int {
	log := logger.With().Str("component", "dispatch").Logger()

	sent := 0
	for i, msg := range messages {
		if err := notifier.Notify(ctx, msg); err != nil {
			log.Error().Err(err).
				Int("part", i+1).
				Int("parts", len(messages)).
				Msg("failed to send report part")
		} else {
			sent++
			log.Info().
				Int("part", i+1).
				Int("parts", len(messages)).
				Int("bytes", len(msg)).
				Msg("report part sent")
		}

		if i < len(messages)-1 && delay > 0 {
			select {
			case <-ctx.Done():
				return sent
			case <-time.After(delay):
			}
		}
	}
	return sent
}
