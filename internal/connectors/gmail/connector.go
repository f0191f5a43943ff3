package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	netmail "net/mail"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailcss/internal"
	"mailcss/internal/config"
)

const (
	provider = "gmail"
	userID   = "me"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailComposeScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

// FetchDrafts lists the account's drafts. Gmail keeps drafts outside of
// labels, so mailbox is ignored.
func (c *Connector) FetchDrafts(_ string, max int) ([]internal.Draft, error) {
	listCall := c.service.Users.Drafts.List(userID)
	if max > 0 {
		listCall = listCall.MaxResults(int64(max))
	}
	listResp, err := listCall.Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.Draft, 0, len(listResp.Drafts))
	for _, ref := range listResp.Drafts {
		if ref.Id == "" {
			continue
		}

		full, err := c.service.Users.Drafts.Get(userID, ref.Id).Format("raw").Do()
		if err != nil {
			return nil, err
		}
		if full.Message == nil || full.Message.Raw == "" {
			continue
		}

		raw, err := decodeBase64URL(full.Message.Raw)
		if err != nil {
			return nil, err
		}

		draft := internal.Draft{Provider: provider, ID: ref.Id, Raw: raw}
		if hdr, err := netmail.ReadMessage(bytes.NewReader(raw)); err == nil {
			draft.MessageID = hdr.Header.Get("Message-Id")
			draft.Subject = hdr.Header.Get("Subject")
		}
		if draft.MessageID == "" {
			draft.MessageID = full.Message.Id
		}
		out = append(out, draft)
	}

	return out, nil
}

// ReplaceDraft updates the draft in place; Gmail keeps the draft ID.
func (c *Connector) ReplaceDraft(_ string, draft internal.Draft, raw []byte) error {
	body := &gmail.Draft{
		Id:      draft.ID,
		Message: &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)},
	}
	if _, err := c.service.Users.Drafts.Update(userID, draft.ID, body).Do(); err != nil {
		return fmt.Errorf("update gmail draft %s: %w", draft.ID, err)
	}
	return nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
