package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uhyunpark/bookcast/params"
	"github.com/uhyunpark/bookcast/pkg/api"
	"github.com/uhyunpark/bookcast/pkg/auth"
	"github.com/uhyunpark/bookcast/pkg/bus"
	"github.com/uhyunpark/bookcast/pkg/engine"
	"github.com/uhyunpark/bookcast/pkg/orderstore"
	"github.com/uhyunpark/bookcast/pkg/pricefeed"
	"github.com/uhyunpark/bookcast/pkg/storage"
	"github.com/uhyunpark/bookcast/pkg/stream"
	"github.com/uhyunpark/bookcast/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Event bus ----
	eventBus, err := bus.Open(ctx, bus.Config{
		Backend:      cfg.Bus.Backend,
		RedisURL:     cfg.Storage.RedisURL,
		RedisPrefix:  cfg.Bus.RedisPrefix,
		KafkaBrokers: cfg.Bus.KafkaBrokers,
		KafkaTopic:   cfg.Bus.KafkaTopic,
		KafkaGroup:   cfg.Bus.KafkaGroup,
		P2PListen:    cfg.Bus.P2PListen,
		P2PBootstrap: cfg.Bus.P2PBootstrap,
	}, logger)
	if err != nil {
		sugar.Fatalw("bus_open_failed", "backend", cfg.Bus.Backend, "err", err)
	}
	defer eventBus.Close()
	sugar.Infow("bus_opened", "backend", cfg.Bus.Backend)

	// ---- Storage ----
	var journal storage.Multi
	var cache *storage.RedisCache
	var archive *storage.PebbleStore
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			sugar.Fatalw("redis_url_invalid", "err", err)
		}
		cache = storage.NewRedisCache(redis.NewClient(opts))
		defer cache.Close()
		journal = append(journal, cache)
	}
	if cfg.Storage.PebblePath != "" {
		archive, err = storage.NewPebbleStore(cfg.Storage.PebblePath)
		if err != nil {
			sugar.Fatalw("pebble_open_failed", "path", cfg.Storage.PebblePath, "err", err)
		}
		defer archive.Close()
		journal = append(journal, archive)
	}
	if cfg.Storage.JournalFile != "" {
		fj, err := storage.NewFileJournal(cfg.Storage.JournalFile)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Storage.JournalFile, "err", err)
		}
		defer fj.Close()
		journal = append(journal, fj)
	}
	sugar.Infow("storage_configured",
		"redis_cache", cache != nil,
		"pebble", cfg.Storage.PebblePath != "",
		"journal_file", cfg.Storage.JournalFile != "")

	// ---- Stream gateway ----
	streams := stream.NewManager(stream.Config{
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		SendQueueSize:     cfg.Stream.SendQueueSize,
	}, logger)
	if err := streams.Dispatcher().Forward(ctx, eventBus); err != nil {
		sugar.Fatalw("bus_subscribe_failed", "err", err)
	}
	go streams.Run(ctx)

	// ---- Engine ----
	engCfg := engine.DefaultConfig()
	engCfg.ReclaimOnCancel = cfg.Engine.ReclaimOnCancel
	var engJournal engine.Journal
	if len(journal) > 0 {
		engJournal = journal
	}
	eng := engine.New(engCfg, orderstore.New(), eventBus, engJournal, logger)
	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(engineDone)
	}()
	go func() {
		eng.ReadyAfter(ctx, cfg.Engine.ReadyDelay)
		if cfg.Engine.SeedBook && eng.Ready() {
			n := seedBook(ctx, eng, pricefeed.DefaultPrices())
			sugar.Infow("book_seeded", "owner", seedOwner, "orders", n)
		}
	}()

	// ---- Price feed (optional) ----
	var prices api.PriceSource
	if cfg.PriceFeed.Enabled {
		feedCfg := pricefeed.DefaultConfig()
		feedCfg.Interval = cfg.PriceFeed.Interval
		var priceCache pricefeed.PriceCache
		if cache != nil {
			priceCache = cache
		}
		feed := pricefeed.New(feedCfg, eventBus, priceCache, logger)
		cancelFeed := feed.Start(ctx)
		defer cancelFeed()
		prices = feed
	} else {
		sugar.Info("pricefeed_disabled")
	}

	// ---- Auth ----
	verifier := auth.Chain{
		auth.NewJWTVerifier(cfg.Auth.JWTSecret),
		auth.NewEthVerifier(cfg.Auth.MaxAge),
	}

	// ---- API Server ----
	deps := api.Deps{
		Engine:   eng,
		Streams:  streams,
		Verifier: verifier,
		Prices:   prices,
	}
	if cache != nil {
		deps.Cache = cache
	}
	if archive != nil {
		deps.Archive = archive
	}
	apiServer := api.NewServer(api.Config{CORSOrigins: cfg.API.CORSOrigins}, deps, logger)
	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"api_addr", cfg.API.Addr,
		"ready_delay_ms", cfg.Engine.ReadyDelay.Milliseconds(),
		"reclaim_on_cancel", cfg.Engine.ReclaimOnCancel,
		"heartbeat_ms", cfg.Stream.HeartbeatInterval.Milliseconds())

	<-ctx.Done()
	sugar.Info("shutdown_requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	streams.Shutdown()

	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		sugar.Warnw("engine_drain_timeout", "err", shutdownCtx.Err())
	}
	active, cancelled := eng.Counts()
	sugar.Infow("node_stopped", "active_orders", active, "cancelled_orders", cancelled)
}
