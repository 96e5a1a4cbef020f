package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPConfig carries the mailbox connection settings.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS; false dials plaintext then upgrades
	// with STARTTLS.
	TLS     bool
	Mailbox string
}

// IMAPSource fetches unseen messages over IMAP. It connects per fetch,
// so a dead connection heals on the next poll tick.
type IMAPSource struct {
	cfg    IMAPConfig
	logger *slog.Logger
}

// IMAPOption configures an IMAPSource.
type IMAPOption func(*IMAPSource)

// WithIMAPLogger sets the source's logger.
func WithIMAPLogger(logger *slog.Logger) IMAPOption {
	return func(s *IMAPSource) { s.logger = logger }
}

// NewIMAPSource builds a source over the given mailbox settings.
func NewIMAPSource(cfg IMAPConfig, opts ...IMAPOption) *IMAPSource {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	s := &IMAPSource{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchUnseen connects, pulls every unseen message from the mailbox,
// marks them seen, and returns them.
func (s *IMAPSource) FetchUnseen(ctx context.Context) ([]Inbound, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var (
		client *imapclient.Client
		err    error
	)
	if s.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	defer func() {
		if err := client.Logout().Wait(); err != nil {
			s.logger.Debug("imap logout failed", "error", err)
		}
	}()

	if _, err := client.Select(s.cfg.Mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", s.cfg.Mailbox, err)
	}

	searchData, err := client.Search(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	seqNums := searchData.AllSeqNums()
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := imap.SeqSetNum(seqNums...)
	bodySection := &imap.FetchItemBodySection{}
	buffers, err := client.Fetch(seqSet, &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	messages := make([]Inbound, 0, len(buffers))
	for _, buf := range buffers {
		msg := Inbound{Raw: buf.FindBodySection(bodySection)}
		if env := buf.Envelope; env != nil {
			msg.MessageID = env.MessageID
			msg.Subject = env.Subject
			msg.Date = env.Date
			if len(env.From) > 0 {
				msg.From = env.From[0].Addr()
			}
		}
		messages = append(messages, msg)
	}

	// Mark fetched messages seen so the next tick starts fresh; a
	// message that fails processing is surfaced via notification, not
	// by redelivery.
	err = client.Store(seqSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagSeen},
		Silent: true,
	}, nil).Close()
	if err != nil {
		s.logger.Warn("failed to mark messages seen", "error", err)
	}

	return messages, nil
}
