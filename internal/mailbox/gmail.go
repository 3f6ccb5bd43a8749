package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const me = "me"

// Gmail implements Mailbox over the Gmail API
type Gmail struct {
	svc *gmail.Service
}

// NewGmail authorizes against Gmail with an OAuth client credentials file and
// a token file written by the gmail-auth command
func NewGmail(ctx context.Context, credentialsFile, tokenFile string) (*Gmail, error) {
	credentials, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(credentials, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return NewGmailWithService(svc), nil
}

// NewGmailWithService wraps an existing Gmail API client
func NewGmailWithService(svc *gmail.Service) *Gmail {
	return &Gmail{svc: svc}
}

// LoadToken reads an OAuth token saved as JSON
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return &tok, nil
}

// Search returns the IDs of all messages matching query, following page tokens
func (g *Gmail) Search(ctx context.Context, query string) ([]string, error) {
	var ids []string
	err := g.svc.Users.Messages.List(me).Q(query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	slog.Debug("Mailbox search finished", "query", query, "messages", len(ids))
	return ids, nil
}

// Attachments returns the PDF attachments of a message
func (g *Gmail) Attachments(ctx context.Context, messageID string) ([]Attachment, error) {
	msg, err := g.svc.Users.Messages.Get(me, messageID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", messageID, err)
	}
	if msg.Payload == nil {
		return nil, nil
	}

	subject := DefaultSubject
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") && h.Value != "" {
			subject = h.Value
		}
	}

	var attachments []Attachment
	for _, part := range pdfParts(msg.Payload) {
		encoded := part.Body.Data
		if part.Body.AttachmentId != "" {
			body, err := g.svc.Users.Messages.Attachments.Get(me, messageID, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				return nil, fmt.Errorf("getting attachment %s: %w", part.Filename, err)
			}
			encoded = body.Data
		}
		data, err := decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding attachment %s: %w", part.Filename, err)
		}
		attachments = append(attachments, Attachment{
			Filename: part.Filename,
			Subject:  subject,
			Data:     data,
		})
	}
	return attachments, nil
}

// pdfParts walks nested multipart bodies and collects parts named *.pdf
func pdfParts(part *gmail.MessagePart) []*gmail.MessagePart {
	var found []*gmail.MessagePart
	if part.Body != nil && strings.HasSuffix(strings.ToLower(part.Filename), ".pdf") {
		found = append(found, part)
	}
	for _, child := range part.Parts {
		found = append(found, pdfParts(child)...)
	}
	return found
}

// decode accepts base64url with or without padding
func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
