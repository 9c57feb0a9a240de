// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package source

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/metrics"
)

// Ensure BreakerClient implements ClientInterface
var _ ClientInterface = (*BreakerClient)(nil)

// BreakerClient wraps a source client with a circuit breaker so a dead or
// degraded Recording Source API fails fast instead of stalling every run
// on timeouts.
//
// The breaker uses real time for its interval and timeout calculations;
// that is intentional for production resilience.
type BreakerClient struct {
	client ClientInterface
	cb     *gobreaker.CircuitBreaker[*Page]
	pingCB *gobreaker.CircuitBreaker[struct{}]
	name   string
}

// NewBreakerClient wraps client in a circuit breaker.
// Breaker configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute open period before attempting recovery
//   - Opens at >=60% failure rate with minimum 10 requests
func NewBreakerClient(client ClientInterface) *BreakerClient {
	cbName := "recording-source"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	settings := gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false // need statistical significance
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening recording source circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] Recording source state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	}

	return &BreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker[*Page](settings),
		pingCB: gobreaker.NewCircuitBreaker[struct{}](settings),
		name:   cbName,
	}
}

// Ping checks source connectivity through the breaker.
func (b *BreakerClient) Ping(ctx context.Context) error {
	_, err := b.pingCB.Execute(func() (struct{}, error) {
		return struct{}{}, b.client.Ping(ctx)
	})
	return err
}

// ListRecordings fetches a page through the breaker.
func (b *BreakerClient) ListRecordings(ctx context.Context, start, end time.Time, cursor string, limit int) (*Page, error) {
	return b.cb.Execute(func() (*Page, error) {
		return b.client.ListRecordings(ctx, start, end, cursor, limit)
	})
}

// stateToString converts a gobreaker state to its metric label.
func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// stateToFloat converts a gobreaker state to its metric gauge value.
func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
