package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/traceline/llm"
	"github.com/c360studio/traceline/metrics"
	"github.com/c360studio/traceline/workitem"
)

// Inbound is one message pulled from the mailbox.
type Inbound struct {
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	// Raw is the full RFC 822 message.
	Raw []byte
}

// WorkItemUpdater is the slice of the work item store the processor
// needs to apply a reply.
type WorkItemUpdater interface {
	Get(ctx context.Context, id string) (*workitem.WorkItem, error)
	Update(ctx context.Context, id string, upd workitem.Update, actor string) (*workitem.WorkItem, error)
	AddComment(ctx context.Context, id, text, actor string) (*workitem.Comment, error)
}

// Extractor is the LLM fallback used when the structured grammar fails.
type Extractor interface {
	ExtractWorkInstruction(ctx context.Context, body string) (*llm.WorkInstruction, error)
}

// Notifier sends user-facing parse failure notifications.
type Notifier interface {
	SendParseError(ctx context.Context, to, subject, reason string) error
}

// Processor turns inbound replies into work item updates, thread
// entries, and parse-failure notifications.
type Processor struct {
	items     WorkItemUpdater
	threads   ThreadStore
	extractor Extractor
	notifier  Notifier
	logger    *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithExtractor enables the LLM fallback.
func WithExtractor(e Extractor) ProcessorOption {
	return func(p *Processor) { p.extractor = e }
}

// WithNotifier enables parse-error notifications to the reply's sender.
func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) { p.notifier = n }
}

// WithProcessorLogger sets the processor's logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// NewProcessor builds a Processor over the work item store and thread store.
func NewProcessor(items WorkItemUpdater, threads ThreadStore, opts ...ProcessorOption) *Processor {
	p := &Processor{
		items:   items,
		threads: threads,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the parse pipeline on one inbound message: work item id
// from the subject, text body, structured parse, LLM fallback, then
// apply. Failures notify the sender when a notifier is configured.
func (p *Processor) Process(ctx context.Context, msg Inbound) error {
	workItemID, ok := WorkItemIDFromSubject(msg.Subject)
	if !ok {
		p.fail(ctx, msg, ParseMethodNone, "the subject does not reference a work item")
		return fmt.Errorf("%w: %q", ErrNoWorkItemID, msg.Subject)
	}

	body, err := ExtractTextBody(msg.Raw)
	if err != nil || body == "" {
		// Header-only or undecodable message: fall back to the raw
		// bytes so a plain unstructured reply still reaches the LLM.
		body = strings.TrimSpace(string(msg.Raw))
	}

	instruction, parseMethod := p.parse(ctx, body)
	if instruction == nil {
		p.fail(ctx, msg, ParseMethodNone, "no status, comment, or time could be extracted")
		return fmt.Errorf("%w: message %s", ErrUnparsable, msg.MessageID)
	}

	if err := p.apply(ctx, workItemID, msg, instruction); err != nil {
		metrics.EmailsFailed.Inc()
		return err
	}

	if err := p.threads.Append(ctx, workItemID, msg.Subject, Message{
		MessageID: msg.MessageID,
		Direction: DirectionInbound,
		From:      msg.From,
		Subject:   msg.Subject,
		Body:      body,
		Timestamp: msg.Date,
	}); err != nil {
		p.logger.Warn("failed to record inbound message", "workitem_id", workItemID, "error", err)
	}

	metrics.EmailsProcessed.Inc()
	metrics.EmailParses.WithLabelValues(parseMethod).Inc()
	p.logger.Info("reply applied",
		"workitem_id", workItemID,
		"message_id", msg.MessageID,
		"parse_method", parseMethod)
	return nil
}

// parse attempts the structured grammar, then the LLM fallback.
func (p *Processor) parse(ctx context.Context, body string) (*llm.WorkInstruction, string) {
	if instruction, ok := ParseStructured(body); ok {
		return instruction, ParseMethodStructured
	}
	if p.extractor == nil {
		return nil, ParseMethodNone
	}
	instruction, err := p.extractor.ExtractWorkInstruction(ctx, body)
	if err != nil {
		p.logger.Warn("llm extraction failed", "error", err)
		return nil, ParseMethodNone
	}
	if instruction == nil || instruction.IsEmpty() {
		return nil, ParseMethodNone
	}
	return instruction, ParseMethodLLM
}

// apply writes the instruction through the work item store. The reply's
// sender is the acting user for audit purposes.
func (p *Processor) apply(ctx context.Context, workItemID string, msg Inbound, instruction *llm.WorkInstruction) error {
	actor := msg.From
	if actor == "" {
		actor = "email-ingest"
	}

	upd := workitem.Update{ChangeDescription: "Updated via email reply"}
	changed := false

	if instruction.Status != "" {
		status := workitem.Status(instruction.Status)
		upd.Status = &status
		changed = true
	}
	if instruction.TimeSpentHours > 0 {
		current, err := p.items.Get(ctx, workItemID)
		if err != nil {
			return fmt.Errorf("apply reply to %s: %w", workItemID, err)
		}
		total := current.ActualHours + instruction.TimeSpentHours
		upd.ActualHours = &total
		changed = true
	}
	if changed {
		if _, err := p.items.Update(ctx, workItemID, upd, actor); err != nil {
			return fmt.Errorf("apply reply to %s: %w", workItemID, err)
		}
	}

	comment := instruction.Comment
	if instruction.NextSteps != "" {
		if comment != "" {
			comment += "\n\n"
		}
		comment += "Next steps: " + instruction.NextSteps
	}
	if comment != "" {
		if _, err := p.items.AddComment(ctx, workItemID, comment, actor); err != nil {
			return fmt.Errorf("comment on %s: %w", workItemID, err)
		}
	}
	return nil
}

// fail records a parse failure and notifies the sender when possible.
func (p *Processor) fail(ctx context.Context, msg Inbound, parseMethod, reason string) {
	metrics.EmailsFailed.Inc()
	metrics.EmailParses.WithLabelValues(parseMethod).Inc()
	p.logger.Warn("reply not processed",
		"message_id", msg.MessageID,
		"from", msg.From,
		"reason", reason)

	if p.notifier == nil || msg.From == "" {
		return
	}
	if err := p.notifier.SendParseError(ctx, msg.From, msg.Subject, reason); err != nil {
		p.logger.Warn("failed to send parse error notification", "to", msg.From, "error", err)
	}
}
