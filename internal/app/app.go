package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hl-mm-bot/internal/alerts"
	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/exec"
	"hl-mm-bot/internal/history"
	"hl-mm-bot/internal/inventory"
	"hl-mm-bot/internal/ledger"
	"hl-mm-bot/internal/metrics"
	"hl-mm-bot/internal/risk"
	"hl-mm-bot/internal/state/sqlite"
	"hl-mm-bot/internal/strategy"
	"hl-mm-bot/internal/venue"
	"hl-mm-bot/internal/venue/hl"

	"go.uber.org/zap"
)

// App wires the engine together: venue connectors, the order book ledger,
// the risk guard, one strategy controller, and the ambient services around
// them.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	metrics    *metrics.Metrics
	metricsSrv *http.Server
	hist       *history.Writer
	tg         *alerts.Telegram
	book       *ledger.Ledger
	guard      *risk.Guard
	venues     map[string]*hl.Client
	execs      map[string]strategy.VenueExecutor
	controller *strategy.Controller
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if len(cfg.Venues) == 0 {
		return nil, errors.New("at least one venue is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	} else {
		m = metrics.NewNoop()
	}

	hist, err := history.New(cfg.History, log)
	if err != nil {
		return nil, fmt.Errorf("history writer: %w", err)
	}

	book := ledger.New()
	guard := risk.NewGuard(cfg.Risk, book, m, log)

	venues := make(map[string]*hl.Client, len(cfg.Venues))
	execs := make(map[string]strategy.VenueExecutor, len(cfg.Venues))
	for name, vcfg := range cfg.Venues {
		if vcfg.AccountAddress == "" {
			vcfg.AccountAddress = strings.TrimSpace(os.Getenv("HL_ACCOUNT_ADDRESS"))
		}
		if vcfg.AccountAddress == "" {
			return nil, fmt.Errorf("venue %s: account_address is required", name)
		}
		client := hl.New(name, vcfg, log.With(zap.String("venue", name)))
		executor := exec.New(client, store, log.With(zap.String("venue", name)))
		guard.Register(executor)
		venues[name] = client
		execs[name] = executor
	}

	tg := alerts.NewTelegram(cfg.Telegram, log)
	controller := strategy.NewController(guard, store, tg, log)

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		metrics:    m,
		metricsSrv: metricsSrv,
		hist:       hist,
		tg:         tg,
		book:       book,
		guard:      guard,
		venues:     venues,
		execs:      execs,
		controller: controller,
	}, nil
}

// Run starts the configured strategy and blocks until ctx ends, then winds
// everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server failed", zap.Error(err))
			}
		}()
		a.log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Listen))
	}
	if a.hist != nil {
		a.hist.Start(ctx)
	}
	for name, client := range a.venues {
		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("start venue %s: %w", name, err)
		}
	}

	runner, err := a.buildRunner()
	if err != nil {
		return err
	}
	if err := a.controller.Start(ctx, runner); err != nil {
		return err
	}

	<-ctx.Done()
	a.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 45*time.Second)
	defer cancel()
	if err := a.controller.Stop(stopCtx); err != nil {
		a.log.Warn("stop failed", zap.Error(err))
	}
	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			a.log.Warn("history close failed", zap.Error(err))
		}
	}
	if a.metricsSrv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = a.metricsSrv.Shutdown(shutCtx)
	}
	return ctx.Err()
}

// Controller exposes the run controller for operator surfaces.
func (a *App) Controller() *strategy.Controller {
	return a.controller
}

func (a *App) buildRunner() (strategy.Runner, error) {
	if a.cfg.Strategy.Name != "" && a.cfg.Strategy.Name != strategy.NameCrossArb {
		venueName := a.cfg.Strategy.Venue
		client, ok := a.venues[venueName]
		if !ok {
			return nil, fmt.Errorf("strategy venue %q not configured", venueName)
		}
		return strategy.NewMarketMaker(a.cfg.Strategy, client, a.execs[venueName], a.book, a.guard, a.metrics, a.hist, a.log), nil
	}
	if a.cfg.Strategy.Name == strategy.NameCrossArb || a.cfg.Arb.Symbol != "" {
		clients := make(map[string]venue.Client)
		execs := make(map[string]strategy.VenueExecutor)
		for _, name := range []string{a.cfg.Arb.VenueA, a.cfg.Arb.VenueB} {
			client, ok := a.venues[name]
			if !ok {
				return nil, fmt.Errorf("arbitrage venue %q not configured", name)
			}
			clients[name] = client
			execs[name] = a.execs[name]
		}
		return strategy.NewArbitrageur(a.cfg.Arb, clients, execs, inventory.NewTracker(), a.guard, a.metrics, a.hist, a.log), nil
	}
	return nil, errors.New("no strategy configured")
}
