// Package outlook adapts Microsoft Graph mail to provider.Provider. A thread
// is a Graph conversation; its id is the conversationId shared by its messages.
package outlook

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/microcosm-cc/bluemonday"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/matheus3301/mailmirror/internal/provider"
)

var selectFields = []string{"id", "conversationId", "subject", "body", "bodyPreview", "from", "toRecipients", "sentDateTime", "receivedDateTime", "isRead"}

var stripPolicy = bluemonday.StrictPolicy()

// textBodyHeaders asks Graph for plain-text bodies; without it bodies come
// back as HTML.
func textBodyHeaders() *abstractions.RequestHeaders {
	h := abstractions.NewRequestHeaders()
	h.Add("Prefer", `outlook.body-content-type="text"`)
	return h
}

// Adapter implements provider.Provider for Outlook mailboxes.
type Adapter struct {
	client *msgraphsdk.GraphServiceClient
	user   string
}

// New creates an adapter authenticated with a bearer access token.
func New(accessToken, user string) (*Adapter, error) {
	cred := &staticTokenCredential{token: accessToken}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{"https://graph.microsoft.com/.default"})
	if err != nil {
		return nil, fmt.Errorf("create graph client: %w", err)
	}
	if user == "" {
		user = "me"
	}
	return &Adapter{client: client, user: user}, nil
}

func (a *Adapter) conversation(ctx context.Context, threadID string) ([]models.Messageable, error) {
	filter := fmt.Sprintf("conversationId eq '%s'", strings.ReplaceAll(threadID, "'", "''"))
	top := int32(100)
	cfg := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		Headers: textBodyHeaders(),
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Filter: &filter,
			Select: selectFields,
			Top:    &top,
		},
	}
	builder := a.client.Users().ByUserId(a.user).Messages()
	resp, err := builder.Get(ctx, cfg)
	if err != nil {
		return nil, classify(threadID, err)
	}
	msgs := resp.GetValue()
	for next := resp.GetOdataNextLink(); next != nil && *next != ""; next = resp.GetOdataNextLink() {
		resp, err = builder.WithUrl(*next).Get(ctx, &users.ItemMessagesRequestBuilderGetRequestConfiguration{Headers: textBodyHeaders()})
		if err != nil {
			return nil, classify(threadID, err)
		}
		msgs = append(msgs, resp.GetValue()...)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: outlook conversation %s", provider.ErrThreadNotFound, threadID)
	}
	return msgs, nil
}

func (a *Adapter) FetchThread(ctx context.Context, threadID string) ([]provider.Message, error) {
	msgs, err := a.conversation(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		if pm, ok := normalize(m, threadID); ok {
			out = append(out, pm)
		}
	}
	provider.SortMessages(out)
	return out, nil
}

func (a *Adapter) SetThreadRead(ctx context.Context, threadID string) error {
	msgs, err := a.conversation(ctx, threadID)
	if err != nil {
		return err
	}
	read := true
	for _, m := range msgs {
		if m.GetId() == nil || deref(m.GetIsRead()) {
			continue
		}
		patch := models.NewMessage()
		patch.SetIsRead(&read)
		if _, err := a.client.Users().ByUserId(a.user).Messages().ByMessageId(*m.GetId()).Patch(ctx, patch, nil); err != nil {
			return classify(threadID, err)
		}
	}
	return nil
}

func (a *Adapter) ThreadUnreadCount(ctx context.Context, threadID string) (int, error) {
	msgs, err := a.conversation(ctx, threadID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.GetId() != nil && !deref(m.GetIsRead()) {
			n++
		}
	}
	return n, nil
}

func classify(threadID string, err error) error {
	var oerr *odataerrors.ODataError
	if errors.As(err, &oerr) && oerr.ResponseStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: outlook conversation %s", provider.ErrThreadNotFound, threadID)
	}
	return fmt.Errorf("%w: outlook: %w", provider.ErrProviderUnavailable, err)
}

func normalize(m models.Messageable, threadID string) (provider.Message, bool) {
	id := m.GetId()
	if id == nil || *id == "" {
		return provider.Message{}, false
	}
	pm := provider.Message{
		ID:       *id,
		ThreadID: threadID,
		Subject:  deref(m.GetSubject()),
		Unread:   !deref(m.GetIsRead()),
	}
	if conv := m.GetConversationId(); conv != nil && *conv != "" {
		pm.ThreadID = *conv
	}
	pm.Body = bodyText(m)
	if from := m.GetFrom(); from != nil {
		pm.From = address(from.GetEmailAddress())
	}
	var to []string
	for _, r := range m.GetToRecipients() {
		if addr := address(r.GetEmailAddress()); addr != "" {
			to = append(to, addr)
		}
	}
	pm.To = strings.Join(to, ", ")
	switch {
	case m.GetSentDateTime() != nil:
		pm.SentAt = *m.GetSentDateTime()
	case m.GetReceivedDateTime() != nil:
		pm.SentAt = *m.GetReceivedDateTime()
	}
	return pm, true
}

// bodyText prefers the full body, stripping markup when Graph ignored the
// text preference. bodyPreview is truncated by Graph and only used when there
// is no body at all.
func bodyText(m models.Messageable) string {
	body := m.GetBody()
	content := ""
	if body != nil {
		content = deref(body.GetContent())
	}
	if strings.TrimSpace(content) == "" {
		return deref(m.GetBodyPreview())
	}
	if ct := body.GetContentType(); ct != nil && *ct == models.HTML_BODYTYPE {
		return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(content)))
	}
	return content
}

func address(e models.EmailAddressable) string {
	if e == nil {
		return ""
	}
	addr := deref(e.GetAddress())
	if name := deref(e.GetName()); name != "" && addr != "" && name != addr {
		return name + " <" + addr + ">"
	}
	return addr
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// staticTokenCredential hands Graph a pre-acquired access token.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(time.Hour),
	}, nil
}
