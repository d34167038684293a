package order

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler finishes orders the saga left partially applied: it retries
// pending reservations, republishes missing events and cancels orders that
// cannot be fulfilled.
type Reconciler struct {
	orders  Repository
	stock   StockGate
	events  Publisher
	service *Service
	log     zerolog.Logger

	Interval    time.Duration
	MaxAttempts int
	Batch       int
	StepTimeout time.Duration
	now         func() time.Time
}

func NewReconciler(orders Repository, stock StockGate, pub Publisher, svc *Service, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		orders:      orders,
		stock:       stock,
		events:      pub,
		service:     svc,
		log:         log,
		Interval:    30 * time.Second,
		MaxAttempts: 5,
		Batch:       50,
		StepTimeout: 4 * time.Second,
		now:         time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := r.ReconcileOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconcile pass failed")
			} else if n > 0 {
				r.log.Info().Int("orders", n).Msg("reconcile pass")
			}
		}
	}
}

// ReconcileOnce processes one batch and returns how many orders it worked
// on. Orders touched within the last step timeout are left for the next
// pass, since a saga may still be placing them.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	list, err := r.orders.ListUnsettled(ctx, r.Batch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range list {
		if ctx.Err() != nil {
			break
		}
		if r.now().Sub(o.UpdatedAt) < r.StepTimeout {
			continue
		}
		r.reconcile(ctx, o)
		n++
	}
	return n, nil
}

func (r *Reconciler) reconcile(ctx context.Context, o *Order) {
	log := r.log.With().Str("order_id", o.ID).Logger()

	for i := range o.Items {
		it := &o.Items[i]
		if it.Reservation != ReservationPending {
			continue
		}
		if it.Attempts >= r.MaxAttempts {
			it.Reservation = ReservationRejected
			log.Warn().Int64("book_id", it.BookID).Int("attempts", it.Attempts).Msg("giving up on reservation")
			continue
		}
		reserveItem(ctx, r.stock, o, it, r.StepTimeout, log)
	}
	// merged with whatever the saga recorded meanwhile
	r.save(ctx, o, log)

	if o.HasRejected() {
		if _, err := r.service.Cancel(ctx, o.ID); err != nil {
			log.Error().Err(err).Msg("cancel order failed")
			return
		}
		log.Info().Msg("order cancelled, stock released")
		return
	}

	for i := range o.Items {
		if !o.Items[i].Published {
			publishItem(ctx, r.events, o, &o.Items[i], r.StepTimeout, log)
		}
	}
	r.save(ctx, o, log)
}

func (r *Reconciler) save(ctx context.Context, o *Order, log zerolog.Logger) {
	if err := r.orders.SaveReconciliation(ctx, o); err != nil {
		log.Error().Err(err).Msg("save reconciliation state failed")
	}
}
