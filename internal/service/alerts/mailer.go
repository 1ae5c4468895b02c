package alerts

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// SESAPI is the slice of the SES v2 client used for alert mail.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Mailer delivers alert mail.
type Mailer interface {
	SendAlert(ctx context.Context, a *domain.Alert) error
}

// SESMailer mails alerts through SES.
type SESMailer struct {
	client SESAPI
	from   string
	to     []string
}

// NewSESMailer creates a mailer. to is a comma-separated list; an empty
// list turns SendAlert into a log line.
func NewSESMailer(client SESAPI, from, to string) *SESMailer {
	var recipients []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return &SESMailer{client: client, from: from, to: recipients}
}

// Subject formats the alert mail subject line.
func Subject(a *domain.Alert) string {
	return fmt.Sprintf("[osaconnect] %s - %s", strings.ToUpper(string(a.Severity)), a.Category)
}

func body(a *domain.Alert) string {
	var b strings.Builder
	b.WriteString(a.Message)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Organization: %s\n", a.OrganizationID)
	fmt.Fprintf(&b, "Category:     %s\n", a.Category)
	fmt.Fprintf(&b, "Severity:     %s\n", a.Severity)
	fmt.Fprintf(&b, "Time:         %s\n", a.CreatedAt.Format(time.RFC3339))
	return b.String()
}

// SendAlert mails a to every configured recipient.
func (m *SESMailer) SendAlert(ctx context.Context, a *domain.Alert) error {
	subject := Subject(a)
	if m.client == nil || len(m.to) == 0 {
		log.Printf("[alerts] would send: %s", subject)
		return nil
	}
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: m.to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body(a)), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}
