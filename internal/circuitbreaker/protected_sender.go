package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/renewd/renewd/internal/sender"
)

// ProtectedSender wraps a sender.Sender with a CircuitBreaker. When the
// SMS gateway starts failing, the circuit opens and sends fail fast.
// A rejected send surfaces as an ordinary send error, so the dispatcher
// records it as a FAILED delivery like any other gateway failure.
type ProtectedSender struct {
	sender  sender.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(snd sender.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  snd,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts one SMS through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately (fail fast).
func (p *ProtectedSender) Send(ctx context.Context, phone, body string) (string, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("to", phone),
			zap.String("state", p.breaker.GetState().String()),
		)
		return "", fmt.Errorf("%w: %s gateway unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	externalID, err := p.sender.Send(ctx, phone, body)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return "", err
	}

	p.breaker.RecordSuccess()
	return externalID, nil
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
