// Package audit streams delivery attempts to an SQS queue so downstream
// consumers (support dashboards, alerting) can observe delivery outcomes
// without parsing gateway logs. Auditing is optional and best effort; a
// failed enqueue never affects the notification itself.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/notify"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Message is the payload sent to SQS for one delivery attempt.
type Message struct {
	NotificationID string `json:"notification_id"`
	Recipient      string `json:"recipient"`
	Channel        string `json:"channel"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	RecordedAt     int64  `json:"recorded_at"`
}

// Producer sends delivery attempts to SQS.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS audit producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs audit producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Record enqueues one delivery attempt. Returns the SQS message ID.
func (p *Producer) Record(ctx context.Context, attempt notify.DeliveryAttempt) (string, error) {
	msg := Message{
		NotificationID: attempt.NotificationID.String(),
		Recipient:      attempt.Recipient.String(),
		Channel:        attempt.Channel,
		Outcome:        attempt.Outcome,
		Reason:         attempt.Reason,
		DurationMS:     attempt.Duration.Milliseconds(),
		RecordedAt:     time.Now().UnixNano(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send audit message to sqs",
			zap.Error(err),
			zap.String("notification_id", msg.NotificationID),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return *result.MessageId, nil
}

// Hook adapts the producer into a delivery hook. Enqueue failures are
// logged and dropped so auditing can never stall the create path.
func (p *Producer) Hook() notify.DeliveryHook {
	return func(ctx context.Context, attempt notify.DeliveryAttempt) {
		if _, err := p.Record(ctx, attempt); err != nil {
			p.logger.Warn("delivery attempt not audited",
				zap.Error(err),
				zap.String("notification_id", attempt.NotificationID.String()),
			)
		}
	}
}
