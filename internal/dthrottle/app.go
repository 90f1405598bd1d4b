package dthrottle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Application wires together the Throttle, its Engine, the connection
// Dispatcher, the gossip Heartbeat, and the admin HTTP transport into one
// runnable unit.
//
// Grounded on app.go's Application, narrowed to this program's
// components: a Throttle/Engine pair in place of RuleCache/LimiterPool,
// a Dispatcher in place of the HTTP rate-limit handler, a Heartbeat in
// place of OutboxPublisher/CacheInvalidator (DThrottle gossips reports
// directly rather than routing invalidations through an outbox), and one
// AdminTransport in place of the teacher's combined HTTP transport.
type Application struct {
	Config     *Config
	Engine     *Engine
	Dispatcher *Dispatcher
	Heartbeat  *Heartbeat
	Admin      *AdminTransport

	metrics *InMemoryMetrics
	logger  Logger

	ready  atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication validates cfg and constructs every component, without
// starting any background work.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := Logger(NopLogger{})
	if cfg.Debug {
		logger = NewStdLogger(osStderr, true)
	} else {
		logger = NewStdLogger(osStderr, false)
	}
	metrics := NewInMemoryMetrics()

	throttle := NewThrottle(cfg.Burst, cfg.Rate)
	for _, prefix := range cfg.Whitelist {
		throttle.Whitelist(prefix)
	}
	for _, rule := range cfg.Rules {
		if rule.Burst <= 0 || rule.Rate < 0 {
			logger.Error("skipping invalid rule", map[string]any{"prefix": rule.Prefix})
			continue
		}
		throttle.AddRule(rule.Prefix, Parameters{Burst: rule.Burst, Rate: rule.Rate})
	}

	engine := NewEngine(throttle, SystemClock{})
	engine.Switches().SetNeverThrottle(cfg.NeverThrottle)
	engine.Switches().SetRadioSilence(cfg.RadioSilence)

	dispatcher := NewDispatcher(engine, logger, metrics)
	heartbeat := NewHeartbeat(engine, NewInMemoryPubSub(), logger, metrics, cfg.Interval)
	admin := NewAdminTransport(cfg.AdminListenAddr, engine, dispatcher, metrics, logger)

	return &Application{
		Config:     cfg,
		Engine:     engine,
		Dispatcher: dispatcher,
		Heartbeat:  heartbeat,
		Admin:      admin,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Start binds the listeners and begins every background loop: the
// engine's event loop, the heartbeat ticker, and the admin HTTP server.
// It returns once startup succeeds; the background work continues until
// Shutdown.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.Engine.Run(ctx)
	}()

	if err := app.Dispatcher.ListenTCP(portAddr(app.Config.Port)); err != nil {
		cancel()
		return err
	}
	if err := app.Dispatcher.ListenUnix(app.Config.SocketPath); err != nil {
		cancel()
		return err
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.Heartbeat.Start(ctx); err != nil {
			app.logger.Error("heartbeat stopped", map[string]any{"error": err.Error()})
		}
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.Admin.Start(); err != nil {
			app.logger.Error("admin transport stopped", map[string]any{"error": err.Error()})
		}
	}()

	app.ready.Store(true)
	return nil
}

// Shutdown stops the engine loop and heartbeat, closes the listeners
// gracefully (waiting for in-flight connections), and stops the admin
// server.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app.ready.Store(false)

	if err := app.Dispatcher.Shutdown(ctx); err != nil {
		app.logger.Error("dispatcher shutdown error", map[string]any{"error": err.Error()})
	}
	if err := app.Admin.Shutdown(ctx); err != nil {
		app.logger.Error("admin shutdown error", map[string]any{"error": err.Error()})
	}
	if app.cancel != nil {
		app.cancel()
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether Start has completed successfully.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}
