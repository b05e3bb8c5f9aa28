package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kioskly/kioskbus-go/contracts"
)

// Handler is the terminal stage of an interceptor chain.
type Handler interface {
	Handle(ctx context.Context, subject string, env *contracts.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, subject string, env *contracts.Envelope) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, subject string, env *contracts.Envelope) error {
	return f(ctx, subject, env)
}

// Interceptor processes an envelope before it reaches the final handler.
type Interceptor interface {
	Intercept(ctx context.Context, subject string, env *contracts.Envelope, next Handler) error
	Name() string
}

// Chain runs deliveries through an ordered list of interceptors.
type Chain struct {
	interceptors []Interceptor
}

// NewChain creates a chain with the given interceptors, outermost first.
func NewChain(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

// Add appends an interceptor to the chain.
func (c *Chain) Add(i Interceptor) *Chain {
	c.interceptors = append(c.interceptors, i)
	return c
}

// Execute runs the chain and then the final handler.
func (c *Chain) Execute(ctx context.Context, subject string, env *contracts.Envelope, final Handler) error {
	handler := final
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		next := handler
		handler = HandlerFunc(func(ctx context.Context, subject string, env *contracts.Envelope) error {
			return interceptor.Intercept(ctx, subject, env, next)
		})
	}
	return handler.Handle(ctx, subject, env)
}

// LoggingInterceptor logs each delivery with its correlation identifiers.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a logging interceptor.
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

// Intercept implements Interceptor.
func (l *LoggingInterceptor) Intercept(ctx context.Context, subject string, env *contracts.Envelope, next Handler) error {
	start := time.Now()
	err := next.Handle(ctx, subject, env)
	if err != nil {
		l.logger.Error("message handling failed",
			"subject", subject,
			"msgId", env.MsgID,
			"traceId", env.TraceID,
			"sessionId", env.SessionID,
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}
	l.logger.Debug("message handled",
		"subject", subject,
		"msgId", env.MsgID,
		"traceId", env.TraceID,
		"duration", time.Since(start),
	)
	return nil
}

// Name implements Interceptor.
func (l *LoggingInterceptor) Name() string { return "logging" }

// RecoveryInterceptor converts handler panics into errors so one broken
// handler cannot take down the dispatch loop.
type RecoveryInterceptor struct{}

// NewRecoveryInterceptor creates a recovery interceptor.
func NewRecoveryInterceptor() *RecoveryInterceptor {
	return &RecoveryInterceptor{}
}

// Intercept implements Interceptor.
func (r *RecoveryInterceptor) Intercept(ctx context.Context, subject string, env *contracts.Envelope, next Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &contracts.HandlerError{Subject: subject, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return next.Handle(ctx, subject, env)
}

// Name implements Interceptor.
func (r *RecoveryInterceptor) Name() string { return "recovery" }
