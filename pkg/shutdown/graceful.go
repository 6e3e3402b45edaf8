package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WithSignals returns a context cancelled on SIGINT or SIGTERM.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Drain runs hooks in order under a shared deadline and joins their errors.
func Drain(log *slog.Logger, timeout time.Duration, hooks ...Hook) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, h := range hooks {
		if err := h.Fn(ctx); err != nil {
			log.Error("shutdown hook failed", "hook", h.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		log.Info("shutdown hook done", "hook", h.Name)
	}
	return errors.Join(errs...)
}
