package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"

	"github.com/c360studio/traceline/workitem"
)

// dialer abstracts gomail's DialAndSend so tests can capture messages.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SenderConfig carries SMTP and addressing settings for the Sender.
type SenderConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL selects implicit TLS (port 465 style); false means STARTTLS.
	SSL     bool
	From    string
	ReplyTo string
	// AllowPatterns holds glob patterns recipients must match; empty
	// allows every syntactically valid address.
	AllowPatterns []string
}

// Sender composes and submits outbound work instruction emails and
// records them on the work item's thread.
type Sender struct {
	cfg     SenderConfig
	dialer  dialer
	threads ThreadStore
	logger  *slog.Logger
	now     func() time.Time
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithSenderLogger sets the sender's logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) { s.logger = logger }
}

// WithSenderClock overrides the clock, for tests.
func WithSenderClock(now func() time.Time) SenderOption {
	return func(s *Sender) { s.now = now }
}

// withDialer swaps the SMTP dialer, for tests.
func withDialer(d dialer) SenderOption {
	return func(s *Sender) { s.dialer = d }
}

// NewSender builds a Sender over the given SMTP settings and thread store.
func NewSender(cfg SenderConfig, threads ThreadStore, opts ...SenderOption) *Sender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL

	s := &Sender{
		cfg:     cfg,
		dialer:  d,
		threads: threads,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidRecipients filters recipients down to syntactically valid
// addresses matching the allowlist. Invalid entries are returned second.
func (s *Sender) ValidRecipients(recipients []string) (valid, rejected []string) {
	for _, recipient := range recipients {
		addr, err := mail.ParseAddress(strings.TrimSpace(recipient))
		if err != nil {
			rejected = append(rejected, recipient)
			continue
		}
		if !s.allowed(addr.Address) {
			rejected = append(rejected, recipient)
			continue
		}
		valid = append(valid, addr.Address)
	}
	return valid, rejected
}

func (s *Sender) allowed(addr string) bool {
	if len(s.cfg.AllowPatterns) == 0 {
		return true
	}
	for _, pattern := range s.cfg.AllowPatterns {
		if ok, err := doublestar.Match(pattern, addr); err == nil && ok {
			return true
		}
	}
	return false
}

// instructionBody is the plain-text template recipients reply to. The
// reply grammar it advertises is what the parser accepts.
const instructionBody = `You have been assigned the following work item:

Title:       %s
Type:        %s
Status:      %s
Description: %s

Reply to this email keeping the subject intact. To report progress use:

STATUS: <completed|active|in_progress|blocked>
COMMENT: <your update, up to 2000 characters>
TIME: <hours spent, e.g. 2.5>

Fields may appear in any order, separated by new lines or "|".
`

// SendWorkInstruction emails a work item assignment to the recipients
// and records the outbound message on the item's thread. All recipients
// invalid yields ErrNoValidRecipients.
func (s *Sender) SendWorkInstruction(ctx context.Context, item *workitem.WorkItem, recipients []string) error {
	valid, rejected := s.ValidRecipients(recipients)
	if len(rejected) > 0 {
		s.logger.Warn("dropping invalid recipients", "workitem_id", item.ID, "rejected", rejected)
	}
	if len(valid) == 0 {
		return fmt.Errorf("%w: %v", ErrNoValidRecipients, recipients)
	}

	subject := Subject(item.ID, item.Title)
	body := fmt.Sprintf(instructionBody, item.Title, item.Type, item.Status, item.Description)
	messageID := uuid.New().String()

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", valid...)
	m.SetHeader("Subject", subject)
	if s.cfg.ReplyTo != "" {
		m.SetHeader("Reply-To", s.cfg.ReplyTo)
	}
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@traceline>", messageID))
	m.SetBody("text/plain", body)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send work instruction for %s: %w", item.ID, err)
	}

	err := s.threads.Append(ctx, item.ID, subject, Message{
		MessageID: messageID,
		Direction: DirectionOutbound,
		From:      s.cfg.From,
		To:        valid,
		Subject:   subject,
		Body:      body,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		// The mail is already out; a thread write failure is not fatal.
		s.logger.Warn("failed to record outbound message", "workitem_id", item.ID, "error", err)
	}

	s.logger.Info("work instruction sent", "workitem_id", item.ID, "recipients", len(valid))
	return nil
}

// SendParseError notifies a sender that their reply could not be
// understood, echoing the expected grammar.
func (s *Sender) SendParseError(ctx context.Context, to, subject, reason string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoValidRecipients, to)
	}

	body := fmt.Sprintf(`Your reply could not be processed: %s

Please reply keeping the original subject line intact, using:

STATUS: <completed|active|in_progress|blocked>
COMMENT: <your update>
TIME: <hours spent>
`, reason)

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", addr.Address)
	m.SetHeader("Subject", "Re: "+subject)
	if s.cfg.ReplyTo != "" {
		m.SetHeader("Reply-To", s.cfg.ReplyTo)
	}
	m.SetBody("text/plain", body)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send parse error notification: %w", err)
	}
	return nil
}
