package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arunderwood/nextskip-sub005/internal/api"
	"github.com/arunderwood/nextskip-sub005/internal/cache"
	"github.com/arunderwood/nextskip-sub005/internal/config"
	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/fetch"
	"github.com/arunderwood/nextskip-sub005/internal/httpclient"
	"github.com/arunderwood/nextskip-sub005/internal/livespots"
	"github.com/arunderwood/nextskip-sub005/internal/logging"
	"github.com/arunderwood/nextskip-sub005/internal/refresh"
	"github.com/arunderwood/nextskip-sub005/internal/sources"
	"github.com/arunderwood/nextskip-sub005/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nextskipd: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "nextskipd: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Fatal("Daemon failed", "error", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	logging.Info("Store open", "path", cfg.Database.Path)

	worker := cache.NewWorker(64)
	worker.Start(ctx)
	defer worker.Stop()
	registry := cache.NewRegistry(worker)

	spotLookBack := time.Duration(cfg.Cache.SpotLookBackH) * time.Hour
	solarLookBack := time.Duration(cfg.Cache.SolarLookBackH) * time.Hour
	eventLookBack := time.Duration(cfg.Cache.EventLookBackH) * time.Hour

	// Cache TTLs trail the refresh cadence; they are the safety net for
	// a wedged refresh, not the primary freshness mechanism.
	ttl := func(src config.SourceConfig) time.Duration {
		return time.Duration(float64(src.RefreshMinutes) * cfg.Cache.TTLFactor * float64(time.Minute))
	}

	spotCache := cache.New("spots", ttl(cfg.Sources.POTA), func(ctx context.Context) ([]domain.Spot, error) {
		return st.RecentSpots(ctx, time.Now().UTC().Add(-spotLookBack))
	})
	registry.Register(spotCache)

	solarCache := cache.New("solar", ttl(cfg.Sources.SolarNOAA), func(ctx context.Context) (domain.SolarIndices, error) {
		bySource, err := st.LatestSolarPerSource(ctx, time.Now().UTC().Add(-solarLookBack))
		if err != nil {
			return domain.SolarIndices{}, err
		}
		ordered := make([]domain.SolarIndices, 0, len(sources.SolarAuthority))
		for _, name := range sources.SolarAuthority {
			if snap, ok := bySource[name]; ok {
				ordered = append(ordered, snap)
			}
		}
		return domain.MergeSolar(ordered...), nil
	})
	registry.Register(solarCache)

	bandCache := cache.New("bands", ttl(cfg.Sources.BandConditions), func(ctx context.Context) ([]domain.BandCondition, error) {
		return st.LatestBandConditions(ctx, time.Now().UTC().Add(-solarLookBack))
	})
	registry.Register(bandCache)

	contestCache := cache.New("contests", ttl(cfg.Sources.Contests), func(ctx context.Context) ([]domain.Contest, error) {
		return st.ContestsEndingAfter(ctx, time.Now().UTC().Add(-eventLookBack))
	})
	registry.Register(contestCache)

	showerCache := cache.New("showers", ttl(cfg.Sources.MeteorShowers), func(ctx context.Context) ([]domain.MeteorShower, error) {
		return st.ShowersEndingAfter(ctx, time.Now().UTC().Add(-eventLookBack))
	})
	registry.Register(showerCache)

	hc := httpclient.WithTimeout(time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second)
	ua := cfg.Fetch.UserAgent

	opts := func(src config.SourceConfig) fetch.Options {
		return fetch.Options{
			MaxRetries:     src.Retries(cfg.Fetch),
			BackoffInitial: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
			BackoffMax:     time.Duration(cfg.Fetch.BackoffMaxSeconds) * time.Second,
			FailureRate:    src.FailureRate(cfg.Fetch),
			MinRequests:    uint32(cfg.Fetch.BreakerMinRequests),
			Cooldown:       time.Duration(cfg.Fetch.BreakerCooldownSec) * time.Second,
			RatePerMinute:  cfg.Fetch.RatePerMinute,
		}
	}
	interval := func(src config.SourceConfig) time.Duration {
		return time.Duration(src.RefreshMinutes) * time.Minute
	}

	spotCutoff := func() time.Time {
		return time.Now().UTC().Add(-time.Duration(cfg.Retention.SpotMaxAgeHours) * time.Hour)
	}
	solarCutoff := func() time.Time {
		return time.Now().UTC().Add(-time.Duration(cfg.Retention.SolarMaxAgeHours) * time.Hour)
	}
	eventCutoff := func() time.Time {
		return time.Now().UTC().AddDate(0, 0, -cfg.Retention.EventMaxAgeDays)
	}

	// needsLoad decides cold-start eligibility from the newest stored
	// row; with eager load off no source ever reports cold.
	needsLoad := func(source string, newest func(context.Context, string) (time.Time, error), every time.Duration) func(context.Context) (bool, error) {
		if !cfg.Startup.EagerLoad {
			return nil
		}
		return func(ctx context.Context) (bool, error) {
			at, err := newest(ctx, source)
			if err != nil {
				return false, err
			}
			return at.IsZero() || time.Since(at) > every, nil
		}
	}

	coord := refresh.NewCoordinator()
	enabled := 0

	if src := cfg.Sources.POTA; src.Enabled {
		enabled++
		client := fetch.NewResilient[[]domain.Spot](
			sources.NewPOTA(hc, src.URL, interval(src), ua),
			opts(src),
			func() []domain.Spot { return nil },
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[[]domain.Spot]{
			Client:      client,
			DisplayName: "POTA spots",
			Persist: func(ctx context.Context, batch []domain.Spot) (int64, int64, error) {
				return st.ReplaceSpots(ctx, sources.SourcePOTA, batch, spotCutoff())
			},
			Caches:           registry,
			CacheName:        spotCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourcePOTA, st.NewestSpot, interval(src)),
		}))
	}

	if src := cfg.Sources.SOTA; src.Enabled {
		enabled++
		client := fetch.NewResilient[[]domain.Spot](
			sources.NewSOTA(hc, src.URL, interval(src), ua),
			opts(src),
			func() []domain.Spot { return nil },
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[[]domain.Spot]{
			Client:      client,
			DisplayName: "SOTA spots",
			Persist: func(ctx context.Context, batch []domain.Spot) (int64, int64, error) {
				return st.ReplaceSpots(ctx, sources.SourceSOTA, batch, spotCutoff())
			},
			Caches:           registry,
			CacheName:        spotCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourceSOTA, st.NewestSpot, interval(src)),
		}))
	}

	if src := cfg.Sources.SolarNOAA; src.Enabled {
		enabled++
		// No default value: a cold NOAA outage should read as an error
		// on the health surface, not as a fabricated quiet sun.
		client := fetch.NewResilient[domain.SolarIndices](
			sources.NewNOAA(hc, src.URL, interval(src), ua),
			opts(src),
			nil,
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[domain.SolarIndices]{
			Client:      client,
			DisplayName: "NOAA solar indices",
			Persist: func(ctx context.Context, reading domain.SolarIndices) (int64, int64, error) {
				return st.ReplaceSolar(ctx, sources.SourceNOAA, []domain.SolarIndices{reading}, solarCutoff())
			},
			Caches:           registry,
			CacheName:        solarCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourceNOAA, st.NewestSolar, interval(src)),
		}))
	}

	if src := cfg.Sources.SolarHamQSL; src.Enabled {
		enabled++
		client := fetch.NewResilient[domain.SolarIndices](
			sources.NewHamQSL(hc, src.URL, interval(src), ua),
			opts(src),
			nil,
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[domain.SolarIndices]{
			Client:      client,
			DisplayName: "HamQSL solar indices",
			Persist: func(ctx context.Context, reading domain.SolarIndices) (int64, int64, error) {
				return st.ReplaceSolar(ctx, sources.SourceHamQSL, []domain.SolarIndices{reading}, solarCutoff())
			},
			Caches:           registry,
			CacheName:        solarCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourceHamQSL, st.NewestSolar, interval(src)),
		}))
	}

	if src := cfg.Sources.BandConditions; src.Enabled {
		enabled++
		client := fetch.NewResilient[[]domain.BandCondition](
			sources.NewBandConditions(hc, src.URL, interval(src), ua),
			opts(src),
			func() []domain.BandCondition { return nil },
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[[]domain.BandCondition]{
			Client:      client,
			DisplayName: "Band conditions",
			Persist: func(ctx context.Context, batch []domain.BandCondition) (int64, int64, error) {
				return st.ReplaceBandConditions(ctx, sources.SourceBandConditions, batch, solarCutoff())
			},
			Caches:           registry,
			CacheName:        bandCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourceBandConditions, st.NewestBandCondition, interval(src)),
		}))
	}

	if src := cfg.Sources.Contests; src.Enabled {
		enabled++
		client := fetch.NewResilient[[]domain.Contest](
			sources.NewContests(hc, src.URL, interval(src), ua),
			opts(src),
			func() []domain.Contest { return nil },
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[[]domain.Contest]{
			Client:      client,
			DisplayName: "Contest calendar",
			Persist: func(ctx context.Context, batch []domain.Contest) (int64, int64, error) {
				return st.ReplaceContests(ctx, sources.SourceContestCal, batch, eventCutoff())
			},
			Caches:           registry,
			CacheName:        contestCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourceContestCal, st.NewestContest, interval(src)),
		}))
	}

	if src := cfg.Sources.MeteorShowers; src.Enabled {
		enabled++
		client := fetch.NewResilient[[]domain.MeteorShower](
			sources.NewMeteors(hc, src.URL, interval(src), ua),
			opts(src),
			func() []domain.MeteorShower { return nil },
		)
		coord.Register(refresh.NewService(refresh.ServiceOptions[[]domain.MeteorShower]{
			Client:      client,
			DisplayName: "Meteor showers",
			Persist: func(ctx context.Context, batch []domain.MeteorShower) (int64, int64, error) {
				return st.ReplaceMeteorShowers(ctx, sources.SourceMeteors, batch, eventCutoff())
			},
			Caches:           registry,
			CacheName:        showerCache.Name(),
			NeedsInitialLoad: needsLoad(sources.SourceMeteors, st.NewestMeteorShower, interval(src)),
		}))
	}

	var window *livespots.Window
	var stream *livespots.Stream
	if cfg.Stream.Enabled {
		window = livespots.NewWindow(time.Duration(cfg.Stream.WindowMinutes) * time.Minute)
		stream = livespots.NewStream(livespots.Config{
			Broker:   cfg.Stream.Broker,
			Topic:    cfg.Stream.Topic,
			ClientID: cfg.Stream.ClientID,
		}, window)
		if err := stream.Start(); err != nil {
			logging.Warn("Live stream failed to start", "error", err)
		}
		defer stream.Close()
	}

	coord.Start(ctx)
	defer coord.Stop()

	deps := api.Deps{
		Spots:       spotCache,
		Solar:       solarCache,
		Bands:       bandCache,
		Contests:    contestCache,
		Showers:     showerCache,
		Live:        window,
		Coordinator: coord,
	}
	if stream != nil {
		deps.Stream = stream
	}
	surface := api.New(deps)

	go statusLoop(ctx, surface)

	logging.Info("nextskipd running",
		"sources", enabled,
		"live_stream", cfg.Stream.Enabled,
		"eager_load", cfg.Startup.EagerLoad)

	<-ctx.Done()
	logging.Info("Shutting down")
	return nil
}

// statusLoop periodically logs the dashboard headline so an operator
// tailing the log sees what the read surface would serve.
func statusLoop(ctx context.Context, surface *api.API) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := surface.Summary(ctx)
			health := surface.Health()
			healthy := 0
			for _, h := range health {
				if h.Healthy {
					healthy++
				}
			}

			kv := []interface{}{
				"activations", sum.Count,
				"bands", len(sum.Bands),
				"live_rollups", len(surface.Activity()),
				"healthy_sources", fmt.Sprintf("%d/%d", healthy, len(health)),
			}
			if ranked := surface.Ranked(ctx); len(ranked) > 0 {
				kv = append(kv, "top", ranked[0].Label, "top_score", ranked[0].Score)
			}
			logging.Info("Status", kv...)
		}
	}
}
