// Package gmail adapts the Gmail API to provider.Provider.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/mailmirror/internal/provider"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const unreadLabel = "UNREAD"

// Config holds the OAuth client and token location for one mailbox.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	User         string
}

// Adapter implements provider.Provider for Gmail.
type Adapter struct {
	svc  *gmail.Service
	user string
}

// New builds an adapter from an OAuth token stored on disk. The token is
// refreshed transparently by the oauth2 client.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	tok, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailModifyScope},
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewWithService(svc, cfg.User), nil
}

// NewWithService wraps an existing Gmail service.
func NewWithService(svc *gmail.Service, user string) *Adapter {
	if user == "" {
		user = "me"
	}
	return &Adapter{svc: svc, user: user}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gmail token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse gmail token: %w", err)
	}
	return &tok, nil
}

func (a *Adapter) FetchThread(ctx context.Context, threadID string) ([]provider.Message, error) {
	th, err := a.svc.Users.Threads.Get(a.user, threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classify(threadID, err)
	}
	return parseThread(th), nil
}

func (a *Adapter) SetThreadRead(ctx context.Context, threadID string) error {
	req := &gmail.ModifyThreadRequest{RemoveLabelIds: []string{unreadLabel}}
	if _, err := a.svc.Users.Threads.Modify(a.user, threadID, req).Context(ctx).Do(); err != nil {
		return classify(threadID, err)
	}
	return nil
}

func (a *Adapter) ThreadUnreadCount(ctx context.Context, threadID string) (int, error) {
	th, err := a.svc.Users.Threads.Get(a.user, threadID).
		Format("metadata").MetadataHeaders("From").Context(ctx).Do()
	if err != nil {
		return 0, classify(threadID, err)
	}
	n := 0
	for _, m := range th.Messages {
		if m.Id != "" && slices.Contains(m.LabelIds, unreadLabel) {
			n++
		}
	}
	return n, nil
}

func classify(threadID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 404 || gerr.Code == 410) {
		return fmt.Errorf("%w: gmail thread %s", provider.ErrThreadNotFound, threadID)
	}
	return fmt.Errorf("%w: gmail: %w", provider.ErrProviderUnavailable, err)
}

func parseThread(th *gmail.Thread) []provider.Message {
	out := make([]provider.Message, 0, len(th.Messages))
	for _, m := range th.Messages {
		if m.Id == "" || m.Payload == nil {
			continue
		}
		headers := make(map[string]string, len(m.Payload.Headers))
		for _, h := range m.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
		threadID := m.ThreadId
		if threadID == "" {
			threadID = th.Id
		}
		out = append(out, provider.Message{
			ID:       m.Id,
			ThreadID: threadID,
			Subject:  headers["subject"],
			Body:     plainBody(m.Payload),
			From:     headers["from"],
			To:       headers["to"],
			SentAt:   sentAt(headers["date"], m.InternalDate),
			Unread:   slices.Contains(m.LabelIds, unreadLabel),
		})
	}
	provider.SortMessages(out)
	return out
}

// plainBody returns the top-level body, or the first text/plain part found
// one or two levels down.
func plainBody(p *gmail.MessagePart) string {
	if p.Body != nil && p.Body.Data != "" {
		return decode(p.Body.Data)
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decode(part.Body.Data)
		}
		for _, nested := range part.Parts {
			if nested.MimeType == "text/plain" && nested.Body != nil && nested.Body.Data != "" {
				return decode(nested.Body.Data)
			}
		}
	}
	return ""
}

func decode(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}

func sentAt(date string, internalMs int64) time.Time {
	if date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			return t
		}
	}
	if internalMs > 0 {
		return time.UnixMilli(internalMs)
	}
	return time.Time{}
}
