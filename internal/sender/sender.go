// Package sender is the outbound SMS boundary. Implementations accept
// a message for delivery and return the provider's message id; no
// synchronous delivery confirmation is promised beyond acceptance.
package sender

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender is the message sender port.
type Sender interface {
	Send(ctx context.Context, phone, body string) (externalID string, err error)
}

// DefaultMaxBodyLen bounds the SMS body. 480 chars is three
// concatenated GSM segments, which SNS handles transparently.
const DefaultMaxBodyLen = 480

// Truncate enforces the transport length bound on a message body.
// The renderer never truncates; the sender owns its medium's limit.
func Truncate(body string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxBodyLen
	}
	runes := []rune(body)
	if len(runes) <= maxLen {
		return body
	}
	return string(runes[:maxLen])
}

// LogSender logs messages instead of delivering them. Used in
// environments without a live SMS transport and in tests; it always
// succeeds and returns a synthetic message id.
type LogSender struct {
	logger *zap.Logger
	maxLen int
}

func NewLogSender(logger *zap.Logger, maxLen int) *LogSender {
	return &LogSender{logger: logger, maxLen: maxLen}
}

func (s *LogSender) Send(ctx context.Context, phone, body string) (string, error) {
	body = Truncate(body, s.maxLen)

	id := fmt.Sprintf("mock-%s", uuid.New())
	s.logger.Info("mock sms sent",
		zap.String("to", phone),
		zap.String("body", body),
		zap.String("message_id", id),
	)
	return id, nil
}
