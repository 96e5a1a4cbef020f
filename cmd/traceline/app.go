package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/config"
	"github.com/c360studio/traceline/graph"
	"github.com/c360studio/traceline/llm"
	_ "github.com/c360studio/traceline/llm/providers"
	"github.com/c360studio/traceline/mail"
	"github.com/c360studio/traceline/resource"
	"github.com/c360studio/traceline/scheduler"
	"github.com/c360studio/traceline/server"
	"github.com/c360studio/traceline/signature"
	"github.com/c360studio/traceline/sprint"
	"github.com/c360studio/traceline/workitem"
)

// App wires the configured backends together: graph store, signature
// store, audit recorders, the HTTP server, and the email poller.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// External connections, nil when the in-memory fallback is active.
	neo4j    *graph.Neo4j
	db       *gorm.DB
	natsConn *nats.Conn

	httpServer *http.Server
	poller     *mail.Poller

	errCh chan error
}

// NewApp creates an application instance from the loaded configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger, errCh: make(chan error, 1)}
}

// Err reports a fatal listener error after Start.
func (a *App) Err() <-chan error { return a.errCh }

// Start opens the backing stores, assembles the services, and starts
// the HTTP listener and (when IMAP is configured) the email poller.
func (a *App) Start(ctx context.Context) error {
	exec, err := a.openGraph(ctx)
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}

	sigStore, recorders, err := a.openRelational()
	if err != nil {
		return fmt.Errorf("open signature store: %w", err)
	}

	threads, natsRecorders, err := a.openNATS(ctx)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	recorder := audit.Multi(append(recorders, natsRecorders...)...)

	signatures := signature.NewService(sigStore,
		signature.WithAuditRecorder(recorder),
		signature.WithLogger(a.logger))
	items := workitem.NewStore(exec,
		workitem.WithSignatureGuard(signatures),
		workitem.WithAuditRecorder(recorder),
		workitem.WithLogger(a.logger))
	sprints := sprint.NewCoordinator(exec, items,
		sprint.WithAuditRecorder(recorder),
		sprint.WithLogger(a.logger))
	resources := resource.NewService(exec,
		resource.WithAuditRecorder(recorder),
		resource.WithLogger(a.logger))
	solver := scheduler.NewSolver(
		scheduler.WithTimeout(a.cfg.Scheduler.SolveTimeout()),
		scheduler.WithLogger(a.logger))

	srv := server.New(server.Services{
		WorkItems:  items,
		Signatures: signatures,
		Sprints:    sprints,
		Solver:     solver,
		Schedules:  scheduler.NewStore(),
		Resources:  resources,
	}, server.WithLogger(a.logger))

	a.httpServer = &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errCh <- err
		}
	}()

	if a.cfg.IMAP.Host != "" {
		if err := a.startPoller(ctx, items, threads); err != nil {
			return fmt.Errorf("start email poller: %w", err)
		}
	} else {
		a.logger.Info("imap.host not set, email ingestion disabled")
	}

	return nil
}

func (a *App) startPoller(ctx context.Context, items *workitem.Store, threads mail.ThreadStore) error {
	sender := mail.NewSender(senderConfig(a.cfg), threads, mail.WithSenderLogger(a.logger))

	opts := []mail.ProcessorOption{
		mail.WithNotifier(sender),
		mail.WithProcessorLogger(a.logger),
	}
	if a.cfg.LLM.Enabled {
		client := llm.NewClient([]llm.Endpoint{{
			Provider: a.cfg.LLM.Provider,
			URL:      a.cfg.LLM.URL,
			Model:    a.cfg.LLM.Model,
		}},
			llm.WithHTTPClient(&http.Client{Timeout: a.cfg.LLM.Timeout()}),
			llm.WithLogger(a.logger))
		opts = append(opts, mail.WithExtractor(client))
	}
	processor := mail.NewProcessor(items, threads, opts...)

	source := mail.NewIMAPSource(mail.IMAPConfig{
		Host:     a.cfg.IMAP.Host,
		Port:     a.cfg.IMAP.Port,
		Username: a.cfg.IMAP.User,
		Password: a.cfg.IMAP.Password,
		TLS:      a.cfg.IMAP.TLS,
		Mailbox:  a.cfg.IMAP.Mailbox,
	}, mail.WithIMAPLogger(a.logger))

	a.poller = mail.NewPoller(source, processor, a.cfg.Email.PollInterval(),
		mail.WithPollerLogger(a.logger))
	return a.poller.Start(ctx)
}

// openGraph selects the configured Neo4j backend, or the in-memory
// executor for development.
func (a *App) openGraph(ctx context.Context) (graph.Executor, error) {
	if a.cfg.Graph.URL == "" {
		a.logger.Warn("graph.url not set, using in-memory graph store")
		return graph.NewMemory(), nil
	}
	opts := []graph.Neo4jOption{graph.WithNeo4jLogger(a.logger)}
	if a.cfg.Graph.Database != "" {
		opts = append(opts, graph.WithDatabase(a.cfg.Graph.Database))
	}
	neo, err := graph.NewNeo4j(ctx, a.cfg.Graph.URL, a.cfg.Graph.Username, a.cfg.Graph.Password, opts...)
	if err != nil {
		return nil, err
	}
	a.neo4j = neo
	return neo, nil
}

// openRelational opens the Postgres-backed signature store and audit
// recorder, or falls back to memory when no DB URL is configured.
func (a *App) openRelational() (signature.Store, []audit.Recorder, error) {
	if a.cfg.Signature.DBURL == "" {
		a.logger.Warn("signature.db_url not set, using in-memory signature store")
		return signature.NewMemoryStore(), nil, nil
	}
	db, err := gorm.Open(postgres.Open(a.cfg.Signature.DBURL), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	a.db = db

	store, err := signature.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}
	rec, err := audit.NewGormRecorder(db)
	if err != nil {
		return nil, nil, err
	}
	return store, []audit.Recorder{rec}, nil
}

// openNATS connects to NATS for the JetStream audit publisher and the
// KV-backed email thread store.
func (a *App) openNATS(ctx context.Context) (mail.ThreadStore, []audit.Recorder, error) {
	if a.cfg.NATS.URL == "" {
		return mail.NewMemoryThreadStore(), nil, nil
	}
	nc, err := nats.Connect(a.cfg.NATS.URL, nats.Name(appName))
	if err != nil {
		return nil, nil, err
	}
	a.natsConn = nc

	threads, err := mail.NewNATSThreadStore(ctx, nc)
	if err != nil {
		return nil, nil, err
	}
	pub, err := audit.NewPublisher(ctx, nc, audit.WithPublisherLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	return threads, []audit.Recorder{pub}, nil
}

// Stop shuts down the poller and HTTP listener, then closes the
// external connections.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if a.poller != nil {
		if err := a.poller.Stop(5 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("stop poller: %w", err))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if a.neo4j != nil {
		if err := a.neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close neo4j: %w", err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close postgres: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// runNotify emails a work instruction for one work item. It needs the
// graph store to read the item, so graph.url must be configured.
func runNotify(ctx context.Context, cfg *config.Config, id string, recipients []string) error {
	if cfg.Graph.URL == "" {
		return fmt.Errorf("notify requires graph.url to be configured")
	}
	logger := slog.Default()

	neo, err := graph.NewNeo4j(ctx, cfg.Graph.URL, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	defer neo.Close(ctx)

	var threads mail.ThreadStore = mail.NewMemoryThreadStore()
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
		if err != nil {
			return fmt.Errorf("connect NATS: %w", err)
		}
		defer nc.Drain()
		if threads, err = mail.NewNATSThreadStore(ctx, nc); err != nil {
			return fmt.Errorf("open thread store: %w", err)
		}
	}

	items := workitem.NewStore(neo, workitem.WithLogger(logger))
	item, err := items.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load work item: %w", err)
	}

	sender := mail.NewSender(senderConfig(cfg), threads, mail.WithSenderLogger(logger))
	if err := sender.SendWorkInstruction(ctx, item, recipients); err != nil {
		return fmt.Errorf("send work instruction: %w", err)
	}
	fmt.Printf("Sent work instruction for %s to %d recipient(s)\n", item.ID, len(recipients))
	return nil
}

func senderConfig(cfg *config.Config) mail.SenderConfig {
	return mail.SenderConfig{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		Username:      cfg.SMTP.User,
		Password:      cfg.SMTP.Password,
		SSL:           cfg.SMTP.TLS,
		From:          cfg.Email.From,
		ReplyTo:       cfg.Email.ReplyTo,
		AllowPatterns: cfg.Email.RecipientAllow,
	}
}
