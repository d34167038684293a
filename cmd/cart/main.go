package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahinestrog/bookstore-orders/internal/cart"
	"github.com/ahinestrog/bookstore-orders/internal/config"
	"github.com/ahinestrog/bookstore-orders/internal/rpc"
	"github.com/ahinestrog/bookstore-orders/internal/storage"
)

func main() {
	cfg := config.LoadCart()
	log := config.NewLogger(cfg.Common)
	must := func(err error, msg string) {
		if err != nil {
			log.Fatal().Err(err).Msg(msg)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBDriver, cfg.DBPath)
	must(err, "open cart db")
	defer db.Close()
	repo, err := cart.NewSQLiteRepo(db, log)
	must(err, "migrate cart db")

	cc, err := rpc.Dial(cfg.CatalogAddr)
	must(err, "dial catalog")
	defer cc.Close()
	gate := cart.NewGate(repo, rpc.NewCatalogClient(cc, cfg.RPCTimeout), log)

	srv, hs := rpc.NewServer(rpc.CartServiceName)
	rpc.RegisterCart(srv, rpc.NewCartServer(gate))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err, "listen")
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Str("catalog", cfg.CatalogAddr).Msg("cart gRPC listening")
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
