package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-orders/internal/catalog"
	"github.com/ahinestrog/bookstore-orders/internal/config"
	"github.com/ahinestrog/bookstore-orders/internal/events"
	"github.com/ahinestrog/bookstore-orders/internal/rpc"
	"github.com/ahinestrog/bookstore-orders/internal/storage"
)

func main() {
	cfg := config.LoadCatalog()
	log := config.NewLogger(cfg.Common)
	must := func(err error, msg string) {
		if err != nil {
			log.Fatal().Err(err).Msg(msg)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	must(err, "open catalog store")
	defer store.Close()

	// libros por defecto, sin pisar los existentes
	if cfg.SeedOnStart {
		must(store.Seed(ctx, catalog.DefaultBooks), "seed catalog")
	}
	gate := catalog.NewGate(store, log)

	bus, err := events.Open(events.Options{
		Kind:      cfg.EventBus,
		RabbitURL: cfg.RabbitURL,
		Exchange:  cfg.Exchange,
		Brokers:   cfg.KafkaBrokers,
	}, log)
	must(err, "open event bus")
	defer bus.Close()

	dedup, err := openDeduper(cfg)
	must(err, "open dedup cache")
	listener := events.NewStockListener(gate, dedup, cfg.ListenerMode, log)
	must(listener.Start(ctx, bus, cfg.ListenerQ), "start stock listener")

	srv, hs := rpc.NewServer(rpc.CatalogServiceName)
	rpc.RegisterCatalog(srv, rpc.NewCatalogServer(gate))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err, "listen")
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Str("store", cfg.Store).Str("listener", cfg.ListenerMode).Msg("catalog gRPC listening")
		if err := srv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("serve")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	hs.Shutdown()
	rpc.Shutdown(srv, cfg.ShutdownGrace)
}

func openStore(ctx context.Context, cfg config.Catalog, log zerolog.Logger) (catalog.Store, error) {
	if cfg.Store == "postgres" {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return catalog.ConnectPostgres(cctx, cfg.PostgresDSN)
	}
	db, err := storage.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return catalog.NewSQLiteStore(db, log)
}

func openDeduper(cfg config.Catalog) (events.Deduper, error) {
	if cfg.DedupBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return events.NewRedisDeduper(rdb, "bookstore:applied:", cfg.DedupTTL), nil
	}
	return events.NewLRUDeduper(cfg.DedupLRUSize)
}
