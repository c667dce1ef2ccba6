// Package gmail sends notifications through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	goption "google.golang.org/api/option"

	"fintrack/internal/notify"
)

type Sender struct {
	svc  *gmailapi.Service
	from string
}

var _ notify.Sender = (*Sender)(nil)

// NewFromEnv creates a Gmail sender using environment variables.
// Required: NOTIFY_FROM (the sending address).
// Optional: GOOGLE_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS for
// auth; without either, Application Default Credentials are used.
func NewFromEnv(ctx context.Context) (*Sender, error) {
	from := strings.TrimSpace(os.Getenv("NOTIFY_FROM"))
	if from == "" {
		return nil, errors.New("missing NOTIFY_FROM")
	}

	opts := []goption.ClientOption{goption.WithScopes(gmailapi.GmailSendScope)}
	if credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credsJSON != "" {
		opts = append(opts, goption.WithCredentialsJSON([]byte(credsJSON)))
	} else if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		opts = append(opts, goption.WithCredentialsFile(credsFile))
	}

	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return &Sender{svc: svc, from: from}, nil
}

func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	raw := base64.RawURLEncoding.EncodeToString(rfc822(s.from, msg))
	_, err := s.svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send gmail message to %s: %w", msg.To, err)
	}
	return nil
}

func rfc822(from string, msg notify.Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}
