package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahinestrog/bookstore-orders/internal/config"
	"github.com/ahinestrog/bookstore-orders/internal/events"
	"github.com/ahinestrog/bookstore-orders/internal/order"
	"github.com/ahinestrog/bookstore-orders/internal/rpc"
	"github.com/ahinestrog/bookstore-orders/internal/storage"
)

func main() {
	cfg := config.LoadOrder()
	log := config.NewLogger(cfg.Common)
	must := func(err error, msg string) {
		if err != nil {
			log.Fatal().Err(err).Msg(msg)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBDriver, cfg.DBPath)
	must(err, "open order db")
	defer db.Close()
	repo, err := order.NewSQLiteRepository(db, log)
	must(err, "migrate order db")

	bus, err := events.Open(events.Options{
		Kind:      cfg.EventBus,
		RabbitURL: cfg.RabbitURL,
		Exchange:  cfg.Exchange,
		Brokers:   cfg.KafkaBrokers,
	}, log)
	must(err, "open event bus")
	defer bus.Close()
	pub := events.NewPublisher(bus, cfg.ServiceName, log)

	catConn, err := rpc.Dial(cfg.CatalogAddr)
	must(err, "dial catalog")
	defer catConn.Close()
	cartConn, err := rpc.Dial(cfg.CartAddr)
	must(err, "dial cart")
	defer cartConn.Close()
	stock := rpc.NewCatalogClient(catConn, cfg.RPCTimeout)
	carts := rpc.NewCartClient(cartConn, cfg.RPCTimeout)

	saga := order.NewSaga(repo, carts, stock, pub, log)
	saga.StepTimeout = cfg.RPCTimeout
	svc := order.NewService(repo, stock, log)
	svc.StepTimeout = cfg.RPCTimeout

	must(svc.StartPaymentConsumer(ctx, bus, cfg.PaymentQ), "start payment consumer")

	rec := order.NewReconciler(repo, stock, pub, svc, log)
	rec.Interval = cfg.ReconcileInterval
	rec.MaxAttempts = cfg.ReconcileAttempts
	rec.Batch = cfg.ReconcileBatch
	rec.StepTimeout = cfg.RPCTimeout
	go rec.Run(ctx)

	srv, hs := rpc.NewServer(rpc.OrderServiceName)
	rpc.RegisterOrder(srv, rpc.NewOrderServer(saga, svc))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err, "listen")
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Str("bus", cfg.EventBus).Msg("order gRPC listening")
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
