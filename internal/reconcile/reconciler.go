package reconcile

import (
	"context"
	"reflect"
	"sort"
	"sync"

	cartdomain "github.com/glowhub/portal/internal/cart/domain"
	"github.com/glowhub/portal/internal/docstore"
	"github.com/glowhub/portal/internal/feedback"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	obsmetrics "github.com/glowhub/portal/internal/observability/metrics"
	"github.com/glowhub/portal/internal/session"
	"github.com/glowhub/portal/internal/wallet"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// watchedCollections are reconciled for the signed-in customer.
var watchedCollections = []string{
	wallet.Collection,
	fulfillmentdomain.BookingsCollection,
	fulfillmentdomain.OrdersCollection,
	feedback.Collection,
	cartdomain.Collection,
	ledgerdomain.Collection,
}

type Params struct {
	fx.In

	LC      fx.Lifecycle `optional:"true"`
	Store   docstore.Store
	Cart    cartdomain.Service
	Wallets *wallet.Cache
	Session session.Session
	Log     *zap.Logger
}

// Reconciler consumes store change notifications for the customer's
// collections, diffs each incoming snapshot against the last applied
// one, and republishes only genuine changes. It is the single writer
// allowed to overwrite the local projections from remote state.
type Reconciler struct {
	store   docstore.Store
	cart    cartdomain.Service
	wallets *wallet.Cache
	log     *zap.Logger
	metrics *obsmetrics.ReconcilerMetrics

	customerID string
	hub        *Hub

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Params) *Reconciler {
	r := &Reconciler{
		store:      p.Store,
		cart:       p.Cart,
		wallets:    p.Wallets,
		log:        p.Log.Named("reconcile"),
		metrics:    obsmetrics.Reconciler(),
		customerID: p.Session.CustomerID,
		hub:        NewHub(p.Log),
	}

	if p.LC != nil {
		p.LC.Append(fx.Hook{
			OnStart: func(context.Context) error {
				r.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				r.Stop()
				return nil
			},
		})
	}
	return r
}

var Module = fx.Module("reconcile",
	fx.Provide(New),
)

// Updates exposes the hub views subscribe to.
func (r *Reconciler) Updates() *Hub { return r.hub }

// Start launches one watcher goroutine per collection. Anonymous
// sessions have nothing to reconcile.
func (r *Reconciler) Start() {
	if r.customerID == "" {
		r.log.Info("no session customer, reconciler idle")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	// Subscriptions are taken before Start returns so that no write
	// landing afterwards can be missed.
	for _, collection := range watchedCollections {
		sub, err := r.store.Subscribe(collection, docstore.Eq("customerId", r.customerID))
		if err != nil {
			r.metrics.WatcherError(collection)
			r.log.Error("subscribe failed", zap.String("collection", collection), zap.Error(err))
			continue
		}
		r.wg.Add(1)
		go r.watch(ctx, collection, sub)
	}
}

func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.hub.Close()
}

func (r *Reconciler) watch(ctx context.Context, collection string, sub *docstore.Subscription) {
	defer r.wg.Done()

	// The last applied snapshot survives resubscription so that the
	// initial snapshot of a fresh stream is not republished when nothing
	// changed while the stream was down.
	var last []docstore.Record
	for {
		var done bool
		last, done = r.consume(ctx, collection, sub, last)
		if done {
			sub.Close()
			return
		}
		sub.Close()

		var err error
		sub, err = r.store.Subscribe(collection, docstore.Eq("customerId", r.customerID))
		if err != nil {
			r.metrics.WatcherError(collection)
			r.log.Error("resubscribe failed", zap.String("collection", collection), zap.Error(err))
			return
		}
		r.metrics.WatcherRestart(collection)
		r.log.Warn("snapshot stream ended, resubscribed", zap.String("collection", collection))
	}
}

// consume drains one subscription until the context ends (done true) or
// the stream closes (done false, caller resubscribes). It returns the
// last applied snapshot so the caller can seed the next stream with it.
func (r *Reconciler) consume(ctx context.Context, collection string, sub *docstore.Subscription, last []docstore.Record) ([]docstore.Record, bool) {
	for {
		select {
		case <-ctx.Done():
			return last, true
		case snap, ok := <-sub.Snapshots():
			if !ok {
				return last, false
			}
			normalized := Normalize(snap.Records)
			if reflect.DeepEqual(last, normalized) {
				r.metrics.SnapshotSkipped(collection)
				continue
			}
			last = normalized
			r.apply(collection, normalized)
			r.metrics.SnapshotApplied(collection)
			r.hub.Publish(Update{Collection: collection, Records: normalized})
		}
	}
}

// apply folds an authoritative snapshot into the local projections that
// keep derived state: the wallet cache and the cart aggregator.
func (r *Reconciler) apply(collection string, records []docstore.Record) {
	switch collection {
	case wallet.Collection:
		for _, rec := range records {
			var w wallet.Wallet
			if err := docstore.Decode(rec, &w); err != nil {
				r.metrics.WatcherError(collection)
				r.log.Warn("malformed wallet snapshot", zap.Error(err))
				continue
			}
			if w.CustomerID == "" {
				continue
			}
			r.wallets.Replace(w.CustomerID, w)
		}
	case cartdomain.Collection:
		items := make([]cartdomain.Item, 0, len(records))
		for _, rec := range records {
			var line cartdomain.Item
			if err := docstore.Decode(rec, &line); err != nil {
				r.metrics.WatcherError(collection)
				r.log.Warn("malformed cart snapshot", zap.Error(err))
				continue
			}
			items = append(items, line)
		}
		r.cart.ApplySnapshot(r.customerID, items)
	}
}

// Normalize orders records deterministically by document id so that
// structural comparison is stable across snapshot deliveries.
func Normalize(records []docstore.Record) []docstore.Record {
	out := make([]docstore.Record, len(records))
	copy(out, records)
	sort.Slice(out, func(a, b int) bool {
		ida, _ := out[a]["id"].(string)
		idb, _ := out[b]["id"].(string)
		return ida < idb
	})
	return out
}
