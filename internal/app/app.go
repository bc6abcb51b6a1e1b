package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"shipping-bot/internal/cache"
	"shipping-bot/internal/config"
	"shipping-bot/internal/country"
	"shipping-bot/internal/fetcher"
	"shipping-bot/internal/notify"
	"shipping-bot/internal/rating"
	"shipping-bot/internal/refdata"
	"shipping-bot/internal/service"
	"shipping-bot/internal/storage"
	"shipping-bot/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// runtime is the wired quote pipeline for one command invocation.
type runtime struct {
	source  refdata.Source
	holder  *refdata.Holder
	engine  *rating.Engine
	service *service.Service
	report  refdata.Report
	close   func()
}

func (r *runtime) Close() {
	if r.close != nil {
		r.close()
	}
}

// bootstrap opens the configured source, loads the first snapshot and wires
// the engine and service around it. A failed initial load is fatal.
func (a *App) bootstrap(ctx context.Context) (*runtime, error) {
	src, store, closeSrc, err := a.openSource(ctx)
	if err != nil {
		return nil, err
	}

	snap, report, err := refdata.Load(ctx, src, a.Logger)
	if err != nil {
		closeSrc()
		return nil, err
	}

	holder := refdata.NewHolder(snap)
	resolver := a.loadResolver(ctx, store)
	engine := rating.NewEngine(holder, resolver, a.Logger)
	sources, closeSources := a.newSources(ctx)
	svc := service.New(a.Config, engine, resolver, holder, sources, a.newNotifier(), a.Logger)

	return &runtime{
		source:  src,
		holder:  holder,
		engine:  engine,
		service: svc,
		report:  report,
		close: func() {
			closeSources()
			closeSrc()
		},
	}, nil
}

// openSource returns the reference data source for data.source. store is
// non-nil only for the postgres source.
func (a *App) openSource(ctx context.Context) (refdata.Source, *storage.Store, func(), error) {
	switch a.Config.Data.Source {
	case config.SourcePostgres:
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, closeStore, nil
	case config.SourceCSV, "":
		a.Logger.Debug().Str("dir", a.Config.Data.Dir).Msg("using csv reference data")
		return refdata.NewDirSource(a.Config.Data.Dir), nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown data source %q", a.Config.Data.Source)
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// loadResolver prefers an alias CSV, then the country_aliases relation, and
// always falls back to the embedded country list.
func (a *App) loadResolver(ctx context.Context, store *storage.Store) *country.Resolver {
	if a.Config.Data.AliasesPath != "" || store == nil {
		resolver, degraded := country.Load(a.Config.Data.AliasesPath, a.Logger)
		if degraded {
			a.Logger.Warn().Msg("country resolver running on a degraded alias set")
		}
		return resolver
	}

	aliases, err := store.LoadAliases(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("cannot read country_aliases; using embedded country list")
		return country.WithFallback(nil, a.Logger)
	}
	a.Logger.Info().Int("aliases", len(aliases)).Msg("country aliases loaded from database")
	return country.WithFallback(aliases, a.Logger)
}

// newSources builds the real-time rate sources, wrapped in the Redis rate
// cache when enabled and reachable.
func (a *App) newSources(ctx context.Context) ([]fetcher.RateSource, func()) {
	cfg := a.Config.UPS
	if !cfg.Enabled {
		return nil, func() {}
	}
	baseURL, authURL := a.Config.UPSEndpoints()
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	ups := fetcher.NewUPS(fetcher.UPSOptions{
		BaseURL:     baseURL,
		AuthURL:     authURL,
		Standard:    upsAccount(cfg.Standard),
		Worldwide:   upsAccount(cfg.Worldwide),
		ShipperName: cfg.ShipperName,
		Origin: fetcher.Address{
			Lines:       cfg.Origin.AddressLines,
			City:        cfg.Origin.City,
			PostalCode:  cfg.Origin.PostalCode,
			CountryCode: cfg.Origin.CountryCode,
		},
		Timeout:           cfg.Timeout,
		UserAgent:         userAgent,
		RequestsPerSecond: cfg.RateLimit,
	}, a.Logger)

	if !a.Config.Cache.Redis.Enabled {
		return []fetcher.RateSource{ups}, func() {}
	}
	rc := cache.NewRedis(a.Config.Cache.Redis)
	if err := rc.Ping(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("rate cache unavailable; querying carriers directly")
		_ = rc.Close()
		return []fetcher.RateSource{ups}, func() {}
	}
	cached := fetcher.NewCachedSource(ups, rc, a.Config.Cache.TTL, a.Logger)
	return []fetcher.RateSource{cached}, func() { _ = rc.Close() }
}

func upsAccount(cfg config.UPSAccountConfig) fetcher.UPSAccount {
	return fetcher.UPSAccount{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		AccountNumber: cfg.AccountNumber,
	}
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}
