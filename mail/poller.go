package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source produces unseen inbound messages. Fetched messages are marked
// seen by the source after handing them over.
type Source interface {
	FetchUnseen(ctx context.Context) ([]Inbound, error)
}

// Poller drives the inbound pipeline: every interval it pulls unseen
// messages from the source and runs each through the processor. It is
// single-flight: a second Start fails until Stop completes.
type Poller struct {
	source    Source
	processor *Processor
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the poller's logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// NewPoller builds a poller over a message source and processor.
func NewPoller(source Source, processor *Processor, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		source:    source,
		processor: processor,
		interval:  interval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the background polling loop. A second Start while the
// loop runs returns ErrAlreadyPolling.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyPolling
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(loopCtx, p.done)
	p.logger.Info("email poller started", "interval", p.interval)
	return nil
}

// Stop cancels the polling loop and waits up to timeout for it to exit.
func (p *Poller) Stop(timeout time.Duration) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("email poller did not stop within %s", timeout)
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First tick immediately so fresh deployments drain the mailbox.
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick fetches unseen messages and processes each in isolation. A
// failure on one message never blocks the rest; connection errors are
// logged and retried next tick.
func (p *Poller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	messages, err := p.source.FetchUnseen(ctx)
	if err != nil {
		p.logger.Warn("mailbox fetch failed", "error", err)
		return
	}
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if err := p.processor.Process(ctx, msg); err != nil {
			p.logger.Warn("message processing failed",
				"message_id", msg.MessageID,
				"error", err)
		}
	}
}
