package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/flow"
	"github.com/aftorrescurrea/chatbot-sub000/internal/lockfile"
	"github.com/aftorrescurrea/chatbot-sub000/internal/memory"
	"github.com/aftorrescurrea/chatbot-sub000/internal/messaging"
	"github.com/aftorrescurrea/chatbot-sub000/internal/nlu"
	"github.com/aftorrescurrea/chatbot-sub000/internal/reply"
	"github.com/aftorrescurrea/chatbot-sub000/internal/scheduler"
	"github.com/aftorrescurrea/chatbot-sub000/internal/session"
	"github.com/aftorrescurrea/chatbot-sub000/internal/store"
	"github.com/aftorrescurrea/chatbot-sub000/internal/twiliowhatsapp"
	"github.com/aftorrescurrea/chatbot-sub000/internal/whatsapp"
)

// Transport names accepted by WithTransport.
const (
	TransportWhatsmeow = "whatsmeow"
	TransportTwilio    = "twilio"
)

// DefaultSweepSchedule is the cron expression for the flow expiry sweep.
const DefaultSweepSchedule = "*/15 * * * *"

// Opts holds configuration for the assembled bot service.
type Opts struct {
	Transport      string
	StateDir       string
	SessionTimeout time.Duration
	FlowTimeout    time.Duration
	SweepSchedule  string

	// WebhookAddr is the listen address for the Twilio inbound webhook
	// server. Ignored for the whatsmeow transport.
	WebhookAddr string
}

// Option defines a configuration option for the bot service.
type Option func(*Opts)

// WithTransport selects the WhatsApp transport: whatsmeow (default) or twilio.
func WithTransport(name string) Option {
	return func(o *Opts) { o.Transport = name }
}

// WithStateDir sets the directory holding the instance lock.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithSessionTimeout sets the inactivity timeout for conversation sessions.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SessionTimeout = d }
}

// WithFlowTimeout sets the idle timeout after which active flows expire.
func WithFlowTimeout(d time.Duration) Option {
	return func(o *Opts) { o.FlowTimeout = d }
}

// WithSweepSchedule sets the cron expression for the flow expiry sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithWebhookAddr sets the Twilio webhook listen address.
func WithWebhookAddr(addr string) Option {
	return func(o *Opts) { o.WebhookAddr = addr }
}

// Run assembles the whole bot and blocks dispatching inbound messages until
// the context is cancelled.
func Run(ctx context.Context, waOpts []whatsapp.Option, storeOpts []store.Option, nluOpts []nlu.Option, twilioOpts []twiliowhatsapp.Option, botOpts []Option) error {
	var cfg Opts
	for _, opt := range botOpts {
		opt(&cfg)
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportWhatsmeow
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = session.DefaultTimeout
	}
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = flow.DefaultFlowTimeout
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}

	// A second instance sharing the state directory would fight over the
	// WhatsApp device session.
	if cfg.StateDir != "" {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("failed to acquire instance lock: %w", err)
		}
		defer lock.Release()
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	detector, err := nlu.NewOpenAIService(nluOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize NLU service: %w", err)
	}

	msgService, twilioService, err := buildTransport(cfg, waOpts, twilioOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging transport: %w", err)
	}

	timers := scheduler.NewTimerSet()
	defer timers.Stop()

	memStore := memory.NewStore()

	engine := flow.NewEngine(cfg.FlowTimeout)
	engine.Register(flow.NewTrialHandler(st))
	engine.Register(flow.NewSupportHandler(st))
	engine.Register(flow.NewTutorialHandler("erp", flow.ERPTutorialSteps()))
	engine.Register(flow.NewTutorialHandler("crm", flow.CRMTutorialSteps()))

	sessions := session.NewManager(cfg.SessionTimeout, timers, msgService, memStore, engine)
	defer sessions.Stop()

	orch := NewOrchestrator(sessions, memStore, engine, detector, reply.NewTemplateGenerator(), msgService, st)

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()

	cron := scheduler.NewCronRunner()
	defer cron.Stop()
	if err := cron.AddJob(cfg.SweepSchedule, func() {
		if expired := orch.ExpireFlows(); len(expired) > 0 {
			slog.Info("Expired stale flows", "count", len(expired), "users", expired)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule flow expiry sweep: %w", err)
	}

	var webhookServer *http.Server
	if twilioService != nil && cfg.WebhookAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/twilio/webhook", twilioService.TwilioWebhookHandler)
		webhookServer = &http.Server{Addr: cfg.WebhookAddr, Handler: mux}
		go func() {
			slog.Info("Twilio webhook server listening", "addr", cfg.WebhookAddr)
			if err := webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Twilio webhook server failed", "error", err)
			}
		}()
		defer webhookServer.Shutdown(context.Background())
	}

	slog.Info("Chatbot running",
		"transport", cfg.Transport,
		"session_timeout", cfg.SessionTimeout,
		"flow_timeout", cfg.FlowTimeout,
		"sweep_schedule", cfg.SweepSchedule)

	dispatch(ctx, orch, msgService)
	slog.Info("Chatbot shutting down")
	return nil
}

// dispatch consumes inbound messages and receipts until the context ends.
// Each message is processed on its own goroutine; the orchestrator's per-user
// locks keep turns for the same user sequential.
func dispatch(ctx context.Context, orch *Orchestrator, svc messaging.Service) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-svc.Responses():
			if !ok {
				return
			}
			userID, err := svc.ValidateAndCanonicalizeRecipient(resp.From)
			if err != nil {
				slog.Warn("Dropping message from invalid sender", "from", resp.From, "error", err)
				continue
			}
			wg.Add(1)
			go func(userID, body string) {
				defer wg.Done()
				if _, err := orch.ProcessTurn(ctx, userID, body); err != nil {
					slog.Error("Turn processing failed", "user_id", userID, "error", err)
				}
			}(userID, resp.Body)
		case receipt, ok := <-svc.Receipts():
			if !ok {
				return
			}
			slog.Debug("Message receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}

// buildStore picks the storage backend from the configured DSN: Postgres for
// postgres DSNs, SQLite otherwise.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// buildTransport constructs the configured messaging transport. The second
// return value is non-nil only for the Twilio transport, whose webhook handler
// must be mounted separately.
func buildTransport(cfg Opts, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) (messaging.Service, *messaging.TwilioService, error) {
	switch cfg.Transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	case TransportWhatsmeow:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
