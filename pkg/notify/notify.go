// Package notify sends learner-facing notifications such as course completion
// mails.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// CourseCompletion describes a finished course
type CourseCompletion struct {
	ToEmail           string
	ToName            string
	CourseTitle       string
	CertificateNumber string
	TenantName        string
	CompletedAt       time.Time
}

// Notifier delivers notifications
type Notifier interface {
	CourseCompleted(ctx context.Context, n CourseCompletion) error
}

// SendGridConfig holds the sender identity and API access
type SendGridConfig struct {
	APIKey    string
	Host      string
	FromEmail string
	FromName  string
}

// SendGridNotifier mails through the SendGrid v3 API
type SendGridNotifier struct {
	config SendGridConfig
	logger *zap.Logger
}

// NewSendGridNotifier creates a notifier. An empty Host uses api.sendgrid.com.
func NewSendGridNotifier(config SendGridConfig, logger *zap.Logger) *SendGridNotifier {
	return &SendGridNotifier{config: config, logger: logger}
}

// CourseCompleted mails the learner their completion and certificate number
func (s *SendGridNotifier) CourseCompleted(ctx context.Context, n CourseCompletion) error {
	from := mail.NewEmail(s.config.FromName, s.config.FromEmail)
	to := mail.NewEmail(n.ToName, n.ToEmail)
	subject := fmt.Sprintf("You completed %s", n.CourseTitle)
	text, html := completionBody(n)

	message := mail.NewSingleEmail(from, subject, to, text, html)

	request := sendgrid.GetRequest(s.config.APIKey, "/v3/mail/send", s.config.Host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		s.logger.Error("SendGrid request failed", zap.String("to", n.ToEmail), zap.Error(err))
		return fmt.Errorf("failed to send completion mail: %w", err)
	}
	if resp.StatusCode >= 300 {
		s.logger.Warn("SendGrid rejected mail",
			zap.String("to", n.ToEmail),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", resp.Body))
		return fmt.Errorf("sendgrid error (status: %d)", resp.StatusCode)
	}

	s.logger.Info("Completion mail sent",
		zap.String("to", n.ToEmail),
		zap.String("certificate_number", n.CertificateNumber))
	return nil
}

func completionBody(n CourseCompletion) (string, string) {
	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nCongratulations on completing %s", n.ToName, n.CourseTitle)
	if n.TenantName != "" {
		fmt.Fprintf(&text, " at %s", n.TenantName)
	}
	text.WriteString(".\n")
	if n.CertificateNumber != "" {
		fmt.Fprintf(&text, "Your certificate number is %s.\n", n.CertificateNumber)
	}

	html := "<p>" + strings.ReplaceAll(strings.TrimSpace(text.String()), "\n", "<br>") + "</p>"
	return text.String(), html
}

// LogNotifier only logs; used when no mail provider is configured
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that writes to logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) CourseCompleted(_ context.Context, n CourseCompletion) error {
	l.logger.Info("Course completed",
		zap.String("to", n.ToEmail),
		zap.String("course", n.CourseTitle),
		zap.String("certificate_number", n.CertificateNumber))
	return nil
}
