package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// shutdownStep releases one resource. Steps run in order.
type shutdownStep struct {
	name  string
	close func(ctx context.Context) error
}

// runUntilShutdown blocks in serve until ctx ends, then runs steps and returns
// only once every step has finished. serve returning http.ErrServerClosed is
// the normal path after the first step stops the listener.
func runUntilShutdown(ctx context.Context, logr *zap.Logger, serve func() error, steps []shutdownStep) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, step := range steps {
			if err := step.close(shutdownCtx); err != nil {
				logr.Error("shutdown step failed", zap.String("step", step.name), zap.Error(err))
			}
		}
	}()

	if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
