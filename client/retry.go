package client

import (
	"context"
	"net"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
)

// retryingDial wraps inner with exponential-backoff retry, in the same
// style as the teacher's connector.makeRetryStrategies: a capped binary
// exponential backoff, optionally bounded by a maximum attempt count, and
// otherwise retried until ctx is done.
func retryingDial(inner DialFunc, factor, cap time.Duration, limit uint) DialFunc {
	return func(ctx context.Context, address string) (net.Conn, error) {
		var conn net.Conn

		strategies := retryStrategies(factor, cap, limit)

		err := retry.Retry(func(attempt uint) error {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			var err error
			conn, err = inner(ctx, address)
			return err
		}, strategies...)

		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return conn, nil
	}
}

func retryStrategies(factor, cap time.Duration, limit uint) []strategy.Strategy {
	backoffFn := backoff.BinaryExponential(factor)

	strategies := []strategy.Strategy{}

	if limit > 0 {
		strategies = append(strategies, strategy.Limit(limit))
	}

	strategies = append(strategies, func(attempt uint) bool {
		if attempt > 0 {
			duration := backoffFn(attempt)
			if duration > cap || duration <= 0 {
				duration = cap
			}
			time.Sleep(duration)
		}
		return true
	})

	return strategies
}
