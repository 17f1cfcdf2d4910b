package middleware

import (
	"context"
	"time"

	"github.com/remindmail/remindmail/internal/config"
	"github.com/remindmail/remindmail/internal/logger"
)

// RateCounter counts hits per key over a fixed window. *database.Redis implements it.
type RateCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Middleware holds all HTTP middleware
type Middleware struct {
	counter RateCounter
	log     *logger.Logger
	cfg     *config.Config
}

// New creates a new Middleware instance. counter may be nil when rate
// limiting is disabled.
func New(counter RateCounter, log *logger.Logger, cfg *config.Config) *Middleware {
	return &Middleware{
		counter: counter,
		log:     log,
		cfg:     cfg,
	}
}
