// Package tracker follows orders through the kitchen by polling the
// storefront until they complete.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
	"golang.org/x/time/rate"
)

// DefaultInterval is the pause between polls.
const DefaultInterval = 10 * time.Second

// OrderSource is the part of the gateway the tracker needs.
type OrderSource interface {
	GetOrder(ctx context.Context, orderID int) (*pizzasdk.Order, error)
	ListMyOrders(ctx context.Context) ([]pizzasdk.Order, error)
}

// Update reports a status change, or a failed poll when Err is set.
type Update struct {
	Order    pizzasdk.Order
	Previous pizzasdk.OrderStatus // empty on the first update for an order
	Err      error
}

// Tracker polls order status.
type Tracker struct {
	Source   OrderSource
	Interval time.Duration
	Logger   *slog.Logger
}

// New creates a tracker. If interval is 0 or negative, defaults to
// DefaultInterval.
func New(source OrderSource, interval time.Duration, logger *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slogx.Discard()
	}
	return &Tracker{Source: source, Interval: interval, Logger: logger}
}

// fatal reports whether polling cannot make progress after err.
func fatal(err error) bool {
	return errors.Is(err, pizzasdk.ErrRenewalFailed) ||
		errors.Is(err, pizzasdk.ErrUnauthenticated) ||
		errors.Is(err, pizzasdk.ErrNoRefreshCredential) ||
		pizzasdk.IsStatus(err, http.StatusNotFound)
}

// Watch polls one order and sends an Update each time its status changes.
// The channel closes once the order completes, ctx ends, or a poll fails in
// a way retrying cannot fix. Transient failures are sent as Updates and
// polling continues.
func (t *Tracker) Watch(ctx context.Context, orderID int) <-chan Update {
	out := make(chan Update)
	go func() {
		defer close(out)

		log := t.Logger.With("order_id", orderID)
		limiter := rate.NewLimiter(rate.Every(t.Interval), 1)
		var last pizzasdk.OrderStatus

		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			order, err := t.Source.GetOrder(ctx, orderID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WarnContext(ctx, "order poll failed", "error", err)
				if !send(ctx, out, Update{Err: err}) || fatal(err) {
					return
				}
				continue
			}

			if order.Status != last {
				log.DebugContext(ctx, "order status changed", "from", last, "to", order.Status)
				if !send(ctx, out, Update{Order: *order, Previous: last}) {
					return
				}
				last = order.Status
			}
			if order.Status.IsTerminal() {
				return
			}
		}
	}()
	return out
}

// WatchAll polls the signed-in user's order list and sends an Update for
// every order whose status changes. The channel closes once every order is
// complete, including when there are none.
func (t *Tracker) WatchAll(ctx context.Context) <-chan Update {
	out := make(chan Update)
	go func() {
		defer close(out)

		limiter := rate.NewLimiter(rate.Every(t.Interval), 1)
		last := make(map[int]pizzasdk.OrderStatus)

		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			orders, err := t.Source.ListMyOrders(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.Logger.WarnContext(ctx, "order list poll failed", "error", err)
				if !send(ctx, out, Update{Err: err}) || fatal(err) {
					return
				}
				continue
			}

			open := 0
			for _, o := range orders {
				prev, seen := last[o.OrderID]
				if !seen || prev != o.Status {
					if !send(ctx, out, Update{Order: o, Previous: prev}) {
						return
					}
					last[o.OrderID] = o.Status
				}
				if !o.Status.IsTerminal() {
					open++
				}
			}
			if open == 0 {
				return
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
