package mailer

import (
	"context"
	"fmt"

	"ms-invites/internal/config"
	"ms-invites/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer delivers one invitation email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) (string, error)
}

// NewMailer creates a mailer from config. Provider "ses" uses AWS SES;
// "noop" or unknown uses a no-op mailer that only logs.
func NewMailer(cfg config.EmailConfig, log *logger.Logger) Mailer {
	switch cfg.Provider {
	case "ses":
		awsCfg := aws.Config{
			Region: cfg.SESRegion,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.SESKeyID, cfg.SESSecret, ""),
			),
		}
		return &sesMailer{
			client:      ses.NewFromConfig(awsCfg),
			fromAddress: cfg.FromAddress,
			fromName:    cfg.FromName,
			log:         log,
		}
	case "noop":
		return &noopMailer{log: log}
	default:
		log.Warn("MAILER", fmt.Sprintf("Unknown email provider %q, using noop", cfg.Provider))
		return &noopMailer{log: log}
	}
}

type sesMailer struct {
	client      *ses.Client
	fromAddress string
	fromName    string
	log         *logger.Logger
}

func (s *sesMailer) Send(ctx context.Context, to, subject, html, text string) (string, error) {
	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}
	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}
	if html != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(html),
			Charset: aws.String("UTF-8"),
		}
	}
	if text != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(text),
			Charset: aws.String("UTF-8"),
		}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to send email via SES: %w", err)
	}
	messageID := aws.ToString(result.MessageId)
	s.log.Info("MAILER", fmt.Sprintf("Email sent via SES to %s (message %s)", to, messageID))
	return messageID, nil
}

type noopMailer struct {
	log *logger.Logger
}

func (n *noopMailer) Send(ctx context.Context, to, subject, html, text string) (string, error) {
	n.log.Info("MAILER", fmt.Sprintf("Email would be sent (noop) to %s: %s", to, subject))
	return "noop", nil
}
