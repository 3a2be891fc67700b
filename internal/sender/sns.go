package sender

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSSender delivers SMS via AWS SNS
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
	maxLen int
}

type SNSConfig struct {
	Region string
	MaxLen int
}

// NewSNSSender creates an SNS-backed SMS sender
func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
		maxLen: cfg.MaxLen,
	}, nil
}

// Send publishes one SMS and returns the SNS message id
func (s *SNSSender) Send(ctx context.Context, phone, body string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("missing recipient phone number")
	}

	body = Truncate(body, s.maxLen)

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(body),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Info("sms sent via sns",
		zap.String("to", phone),
		zap.String("message_id", messageID),
	)

	return messageID, nil
}
