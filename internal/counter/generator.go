package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrSequenceOverflow = errors.New("daily order sequence exhausted")
	ErrGenerationFailed = errors.New("order number generation failed")
)

const (
	sequenceKeyPrefix = "order_sequence_"
	dateLayout        = "20060102"
	baseBackoff       = 100 * time.Millisecond
)

type GeneratorConfig struct {
	Prefix     string
	Width      int
	DailyMax   int64
	MaxRetries int
}

// Generator mints unique human-readable order numbers of the form
// PREFIX-YYYYMMDD-SEQUENCE, backed by one counter document per calendar
// day. The sequence resets implicitly when the date key rolls over.
type Generator struct {
	repo Repository
	cfg  GeneratorConfig
	now  func() time.Time
}

func NewGenerator(repo Repository, cfg GeneratorConfig) *Generator {
	if cfg.Prefix == "" {
		cfg.Prefix = "ORD"
	}
	if cfg.Width <= 0 {
		cfg.Width = 5
	}
	if cfg.DailyMax <= 0 {
		cfg.DailyMax = 99999
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Generator{repo: repo, cfg: cfg, now: time.Now}
}

func (g *Generator) Generate(ctx context.Context) (string, error) {
	date := g.now().UTC().Format(dateLayout)
	key := sequenceKeyPrefix + date

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ctx.Err())
			case <-time.After(backoff):
			}
		}

		seq, err := g.repo.Next(ctx, key)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("key", key).
				Msg("service: transient failure incrementing order sequence")
			continue
		}

		if seq > g.cfg.DailyMax {
			// Hard failure, never roll into the next day's range.
			log.Error().Int64("seq", seq).Int64("daily_max", g.cfg.DailyMax).
				Msg("service: daily order sequence overflow")
			return "", ErrSequenceOverflow
		}

		return fmt.Sprintf("%s-%s-%0*d", g.cfg.Prefix, date, g.cfg.Width, seq), nil
	}

	return "", fmt.Errorf("%w after %d retries: %w", ErrGenerationFailed, g.cfg.MaxRetries, lastErr)
}
