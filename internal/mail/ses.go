package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// SESSender delivers notification emails via AWS SES. It is the managed
// alternative to the SMTP relay; both render the same HTML body.
type SESSender struct {
	client   *ses.Client
	from     string
	renderer *Renderer
	logger   *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESSender(ctx context.Context, cfg SESConfig, renderer *Renderer, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &SESSender{
		client:   ses.NewFromConfig(awsCfg),
		from:     cfg.FromEmail,
		renderer: renderer,
		logger:   logger,
	}, nil
}

// Send submits one notification email via SES.
func (s *SESSender) Send(ctx context.Context, user *db.User, notif *db.Notification) error {
	body, err := s.renderer.Render(notif)
	if err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(notif.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("email sent via SES",
		zap.String("notification_id", notif.ID.String()),
		zap.String("to", user.Email),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}
