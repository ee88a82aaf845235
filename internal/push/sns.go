// Package push delivers notifications to registered mobile endpoints
// via AWS SNS. Push is best effort like email: a user without a
// registered endpoint, or a publish failure, never affects the stored
// notification.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// SNSSender publishes push notifications to a user's SNS endpoint.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSSender creates a new SNS push sender.
func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

type pushPayload struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	RelatedQuery string `json:"related_query,omitempty"`
}

// Send publishes a notification to the user's registered endpoint.
func (s *SNSSender) Send(ctx context.Context, user *db.User, notif *db.Notification) error {
	if user.PushEndpointARN == nil || *user.PushEndpointARN == "" {
		return fmt.Errorf("user %s has no registered push endpoint", user.ID)
	}

	payload := pushPayload{
		Type:    notif.Type,
		Title:   notif.Title,
		Message: notif.Message,
	}
	if notif.RelatedQuery != nil {
		payload.RelatedQuery = notif.RelatedQuery.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	input := &sns.PublishInput{
		TargetArn: user.PushEndpointARN,
		Message:   aws.String(string(body)),
		Subject:   aws.String(notif.Title),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("push sent via SNS",
		zap.String("notification_id", notif.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}
