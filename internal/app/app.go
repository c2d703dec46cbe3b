// Package app wires the engine's components from configuration and
// runs the long-lived loops.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/config"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/broker"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/lifecycle"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/notifier"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/risk"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/ruleset"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/scheduler"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store/gormstore"
	enginehttp "github.com/bmigette/BA2TradePlatform-sub003/internal/transport/http"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// App holds the wired engine.
type App struct {
	cfg      *config.Config
	store    *gormstore.GormStore
	registry *ruleset.Registry
	manager  *lifecycle.Manager
	sizer    *risk.Sizer
	server   *enginehttp.Server

	refreshEvery time.Duration
	sizingEvery  time.Duration
}

// NewApp builds every component from the loaded configuration.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	st, err := gormstore.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	quotes, err := buildQuoteSource(cfg.Quotes)
	if err != nil {
		return nil, err
	}
	gateway, err := buildGateway(cfg.Broker)
	if err != nil {
		return nil, err
	}

	var notify notifier.TextNotifier
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	registry, err := ruleset.NewRegistry(cfg.Rulesets.Path)
	if err != nil {
		return nil, fmt.Errorf("load rulesets: %w", err)
	}

	manager, err := lifecycle.NewManager(st, gateway, quotes, registry, notify, lifecycle.Options{
		AccountID:   cfg.Engine.AccountID,
		LockTimeout: cfg.Engine.LockTimeout(),
	})
	if err != nil {
		return nil, err
	}

	sizer, err := risk.NewSizer(st, quotes, risk.Defaults{
		VirtualBalance:            cfg.Risk.VirtualBalance,
		MaxEquityPerInstrumentPct: cfg.Risk.MaxEquityPerInstrumentPct,
		AllocationFraction:        cfg.Risk.AllocationFraction,
		TopRankException:          cfg.Risk.TopRankException,
		LockTimeout:               cfg.Engine.LockTimeout(),
	})
	if err != nil {
		return nil, err
	}

	server, err := enginehttp.NewServer(enginehttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Router: enginehttp.NewRouter(manager, sizer, st),
	})
	if err != nil {
		return nil, err
	}

	refreshEvery, _ := scheduler.ParseIntervalDuration(cfg.Engine.RefreshInterval)
	sizingEvery, _ := scheduler.ParseIntervalDuration(cfg.Engine.SizingInterval)

	return &App{
		cfg:          cfg,
		store:        st,
		registry:     registry,
		manager:      manager,
		sizer:        sizer,
		server:       server,
		refreshEvery: refreshEvery,
		sizingEvery:  sizingEvery,
	}, nil
}

func buildQuoteSource(cfg config.QuotesConfig) (quote.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "binance":
		return quote.NewBinance(quote.BinanceConfig{}), nil
	case "static":
		return quote.NewStatic(nil), nil
	default:
		return nil, fmt.Errorf("unknown quote source %q", cfg.Source)
	}
}

func buildGateway(cfg config.BrokerConfig) (broker.OrderGateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "paper":
		return broker.NewPaper(cfg.AtomicReplace), nil
	case "http":
		return broker.NewHTTPClient(broker.HTTPConfig{
			APIURL:             cfg.APIURL,
			Username:           cfg.Username,
			Password:           cfg.Password,
			APIToken:           cfg.APIToken,
			TimeoutSeconds:     cfg.TimeoutSeconds,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			AtomicReplace:      cfg.AtomicReplace,
		})
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Mode)
	}
}

// Run starts the HTTP server and the periodic passes, blocking until
// ctx ends or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("http server listening on %s", a.server.Addr())
		return a.server.Start(ctx)
	})

	g.Go(func() error {
		sched := scheduler.NewIntervalScheduler(ctx, "refresh", a.refreshEvery)
		sched.Start(func() { a.runRefreshPass(ctx) })
		return nil
	})

	g.Go(func() error {
		sched := scheduler.NewIntervalScheduler(ctx, "sizing", a.sizingEvery)
		sched.RunImmediately = true
		sched.Start(func() { a.runSizingPass(ctx) })
		return nil
	})

	return g.Wait()
}

// runRefreshPass syncs broker state, then re-evaluates open positions
// against the freshest recommendations.
func (a *App) runRefreshPass(ctx context.Context) {
	if err := a.manager.RefreshOrders(ctx); err != nil {
		logger.Errorf("refresh pass failed: %v", err)
		return
	}
	for _, expertID := range a.registry.ExpertIDs() {
		if _, err := a.manager.EvaluateAndExecute(ctx, expertID, types.UseCaseOpenPositions); err != nil {
			logger.Errorf("open-positions pass failed expert=%d: %v", expertID, err)
		}
	}
}

// runSizingPass turns intent orders into sized, submitted orders.
func (a *App) runSizingPass(ctx context.Context) {
	for _, expertID := range a.registry.ExpertIDs() {
		sized, err := a.sizer.SizePendingOrders(ctx, expertID)
		if err != nil {
			logger.Errorf("sizing pass failed expert=%d: %v", expertID, err)
			continue
		}
		if len(sized) == 0 {
			continue
		}
		submitted, err := a.manager.SubmitSizedOrders(ctx, expertID)
		if err != nil {
			logger.Errorf("submit pass failed expert=%d: %v", expertID, err)
			continue
		}
		logger.Infof("sizing pass expert=%d sized=%d submitted=%d", expertID, len(sized), submitted)
	}
}
