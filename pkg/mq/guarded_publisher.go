package mq

import (
	"context"

	"go.uber.org/zap"

	"expensetracker/pkg/circuitbreaker"
)

// GuardedPublisher sends regular events through a circuit breaker so a broken
// broker fails fast. Dead-letter publishes bypass the breaker.
type GuardedPublisher struct {
	*Publisher
	breaker *circuitbreaker.Breaker
}

func NewGuardedPublisher(p *Publisher, cfg circuitbreaker.Config, logger *zap.Logger) *GuardedPublisher {
	b := circuitbreaker.New(cfg)
	b.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("Publisher circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})
	return &GuardedPublisher{Publisher: p, breaker: b}
}

func (g *GuardedPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	return g.breaker.Execute(func() error {
		return g.Publisher.Publish(ctx, routingKey, payload)
	})
}

// BreakerState is exposed for readiness reporting.
func (g *GuardedPublisher) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}
