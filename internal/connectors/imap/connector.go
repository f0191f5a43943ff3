package imap

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"mailcss/internal"
	"mailcss/internal/config"
)

const provider = "imap"

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
	}, nil
}

func (c *Connector) connect() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}

	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, err
	}
	return client, nil
}

// FetchDrafts returns the newest max messages of mailbox that are not
// flagged for deletion. Bodies are fetched with PEEK so \Seen is untouched.
func (c *Connector) FetchDrafts(mailbox string, max int) ([]internal.Draft, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if _, err := client.Select(mailbox, true); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	uids, err := client.UidSearch(criteria)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(uids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.UidFetch(seqset, items, messages) }()

	out := make([]internal.Draft, 0, len(uids))
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = err
			continue
		}

		draft := internal.Draft{
			Provider: provider,
			ID:       strconv.FormatUint(uint64(msg.Uid), 10),
			Raw:      raw,
		}
		if msg.Envelope != nil {
			draft.MessageID = msg.Envelope.MessageId
			draft.Subject = msg.Envelope.Subject
		}
		out = append(out, draft)
	}

	if err := <-fetchDone; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

// ReplaceDraft appends raw as a new \Draft message, then flags the old one
// \Deleted and expunges it.
func (c *Connector) ReplaceDraft(mailbox string, draft internal.Draft, raw []byte) error {
	uid, err := strconv.ParseUint(draft.ID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid imap draft id %q: %w", draft.ID, err)
	}

	client, err := c.connect()
	if err != nil {
		return err
	}
	defer client.Logout()

	flags := []string{imap.DraftFlag, imap.SeenFlag}
	if err := client.Append(mailbox, flags, time.Now(), bytes.NewBuffer(raw)); err != nil {
		return fmt.Errorf("append draft: %w", err)
	}

	if _, err := client.Select(mailbox, false); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := client.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("flag old draft: %w", err)
	}
	if err := client.Expunge(nil); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}
