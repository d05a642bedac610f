// Package retry executa operações transitórias com tentativas limitadas,
// timeout por tentativa e espera escalonada entre elas.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"governance-gateway/apperr"
	"governance-gateway/clock"
	"governance-gateway/logging"
)

// Options configura o harness. Valores zero assumem os padrões.
type Options struct {
	// Name identifica a operação nos logs e no erro final.
	Name string
	// MaxRetries é o total de tentativas (inclui a primeira). Padrão: 3.
	MaxRetries int
	// Delays entre tentativas; a tentativa i espera Delays[min(i, len-1)].
	// Padrão: 1s, 2s, 4s.
	Delays []time.Duration
	// Timeout de cada tentativa. Padrão: 10s.
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Delays:     []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		Timeout:    10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if len(o.Delays) == 0 {
		o.Delays = d.Delays
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Name == "" {
		o.Name = "operation"
	}
	o.Clock = clock.OrReal(o.Clock)
	if o.Logger == nil {
		o.Logger = logging.Component(nil, "retry", "harness")
	}
	return o
}

// Delay devolve a espera após a tentativa attempt (base 0).
func (o Options) Delay(attempt int) time.Duration {
	if len(o.Delays) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(o.Delays) {
		attempt = len(o.Delays) - 1
	}
	return o.Delays[attempt]
}

type result[T any] struct {
	v   T
	err error
}

// Do executa op até MaxRetries vezes.
//
// Só erros NETWORK e SERVER (apperr.IsRetryable) disparam nova tentativa.
// Estourar o timeout da tentativa conta como falha NETWORK. A falha final
// volta como *apperr.Error com metadados "operation" e "attempts".
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	o := opts.withDefaults()

	var zero T
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < o.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		attempts++

		v, err := runAttempt(ctx, op, o.Timeout)
		if err == nil {
			if attempt > 0 {
				o.Logger.InfoContext(ctx, "operation succeeded after retry",
					"operation", o.Name,
					"outcome", "success",
					"attempts", attempts,
				)
			}
			return v, nil
		}
		lastErr = err

		if !apperr.IsRetryable(err) {
			break
		}
		if attempt == o.MaxRetries-1 {
			break
		}

		delay := o.Delay(attempt)
		o.Logger.DebugContext(ctx, "operation failed, retrying",
			"operation", o.Name,
			"outcome", "retry",
			"attempt", attempts,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = o.MaxRetries
		case <-o.Clock.After(delay):
		}
	}

	o.Logger.WarnContext(ctx, "operation failed",
		"operation", o.Name,
		"outcome", "failure",
		"attempts", attempts,
		"error", lastErr.Error(),
	)

	final := apperr.Wrap(lastErr, apperr.Classify(lastErr), o.Name, "failed after retries")
	final.Metadata = map[string]any{
		"operation": o.Name,
		"attempts":  attempts,
	}
	return zero, final
}

// runAttempt corre op contra o prazo da tentativa; se o prazo vencer
// primeiro, o resultado tardio é descartado.
func runAttempt[T any](ctx context.Context, op func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		v, err := op(actx)
		ch <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.v, apperr.Wrap(r.err, apperr.Network, "attempt", "timed out")
		}
		return r.v, r.err
	case <-actx.Done():
		var zero T
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, apperr.New(apperr.Network, "attempt", "timed out after "+timeout.String())
		}
		return zero, actx.Err()
	}
}
