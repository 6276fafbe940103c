package counter_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"storefront/internal/counter"
)

type mockCounterRepository struct {
	nextFunc func(ctx context.Context, key string) (int64, error)
}

func (m *mockCounterRepository) Next(ctx context.Context, key string) (int64, error) {
	return m.nextFunc(ctx, key)
}

func TestGenerator_Generate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       counter.GeneratorConfig
		nextFunc  func(ctx context.Context, key string) (int64, error)
		wantErrIs error
		wantSeq   string
	}{
		{
			name: "first_of_day",
			cfg:  counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999},
			nextFunc: func(ctx context.Context, key string) (int64, error) {
				return 1, nil
			},
			wantSeq: "00001",
		},
		{
			name: "zero_padding_preserved",
			cfg:  counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999},
			nextFunc: func(ctx context.Context, key string) (int64, error) {
				return 423, nil
			},
			wantSeq: "00423",
		},
		{
			name: "at_daily_max_still_succeeds",
			cfg:  counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999},
			nextFunc: func(ctx context.Context, key string) (int64, error) {
				return 99999, nil
			},
			wantSeq: "99999",
		},
		{
			name: "overflow_past_daily_max",
			cfg:  counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999},
			nextFunc: func(ctx context.Context, key string) (int64, error) {
				return 100000, nil
			},
			wantErrIs: counter.ErrSequenceOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCounterRepository{nextFunc: tt.nextFunc}
			gen := counter.NewGenerator(repo, tt.cfg)

			number, err := gen.Generate(context.Background())
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			assert.NoError(t, err)

			format := counter.NewNumberFormat(tt.cfg.Prefix, tt.cfg.Width)
			parsed, err := format.Parse(number)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSeq, fmt.Sprintf("%05d", parsed.Sequence))
		})
	}
}

func TestGenerator_RetriesTransientErrors(t *testing.T) {
	calls := 0
	repo := &mockCounterRepository{
		nextFunc: func(ctx context.Context, key string) (int64, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection reset")
			}
			return 7, nil
		},
	}
	gen := counter.NewGenerator(repo, counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999, MaxRetries: 3})

	number, err := gen.Generate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, counter.NewNumberFormat("ORD", 5).IsValid(number))
}

func TestGenerator_ExhaustsRetries(t *testing.T) {
	storeErr := errors.New("primary stepped down")
	calls := 0
	repo := &mockCounterRepository{
		nextFunc: func(ctx context.Context, key string) (int64, error) {
			calls++
			return 0, storeErr
		},
	}
	gen := counter.NewGenerator(repo, counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999, MaxRetries: 2})

	_, err := gen.Generate(context.Background())
	assert.ErrorIs(t, err, counter.ErrGenerationFailed)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 3, calls)
}

func TestGenerator_StrictlyIncreasing(t *testing.T) {
	var seq int64
	repo := &mockCounterRepository{
		nextFunc: func(ctx context.Context, key string) (int64, error) {
			seq++
			return seq, nil
		},
	}
	gen := counter.NewGenerator(repo, counter.GeneratorConfig{Prefix: "ORD", Width: 5, DailyMax: 99999})
	format := counter.NewNumberFormat("ORD", 5)

	seen := make(map[string]bool)
	var prev int64
	for i := 0; i < 50; i++ {
		number, err := gen.Generate(context.Background())
		assert.NoError(t, err)
		assert.False(t, seen[number], "order number %s repeated", number)
		seen[number] = true

		parsed, err := format.Parse(number)
		assert.NoError(t, err)
		assert.Greater(t, parsed.Sequence, prev)
		prev = parsed.Sequence
	}
}

func TestNumberFormat_Parse(t *testing.T) {
	format := counter.NewNumberFormat("ORD", 5)

	tests := []struct {
		name    string
		number  string
		valid   bool
		wantSeq int64
	}{
		{name: "well_formed", number: "ORD-20250901-00042", valid: true, wantSeq: 42},
		{name: "wrong_prefix", number: "INV-20250901-00042", valid: false},
		{name: "short_sequence", number: "ORD-20250901-0042", valid: false},
		{name: "long_sequence", number: "ORD-20250901-000042", valid: false},
		{name: "month_zero", number: "ORD-20250001-00042", valid: false},
		{name: "month_thirteen", number: "ORD-20251301-00042", valid: false},
		{name: "day_zero", number: "ORD-20250900-00042", valid: false},
		{name: "day_thirty_two", number: "ORD-20250932-00042", valid: false},
		{name: "year_out_of_range", number: "ORD-19990901-00042", valid: false},
		// Format-level validation only: structurally valid impossible
		// dates pass through.
		{name: "february_thirtieth", number: "ORD-20250230-00042", valid: true, wantSeq: 42},
		{name: "trailing_garbage", number: "ORD-20250901-00042x", valid: false},
		{name: "empty", number: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := format.Parse(tt.number)
			assert.Equal(t, tt.valid, format.IsValid(tt.number))
			if !tt.valid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSeq, parsed.Sequence)
		})
	}
}
