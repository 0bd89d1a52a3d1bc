package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/glowhub/portal/internal/cache"
	"github.com/glowhub/portal/internal/docstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ServicesCollection = "services"
	ProductsCollection = "products"
)

// Kind distinguishes the two catalog item families.
type Kind string

const (
	KindService Kind = "service"
	KindProduct Kind = "product"
)

// Item is the read-side shape shared by services and products. Price is
// in minor currency units.
type Item struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`

	// DurationMinutes is set for services only.
	DurationMinutes int `json:"durationMinutes,omitempty"`
	// Stock is set for products only.
	Stock int `json:"stock,omitempty"`
}

var (
	ErrItemNotFound = errors.New("catalog_item_not_found")
	ErrInvalidKind  = errors.New("invalid_catalog_kind")
)

// Resolver looks up catalog items by kind and id. Lookups go through a
// short TTL cache; a missing document maps to ErrItemNotFound so callers
// can treat dangling references defensively.
type Resolver interface {
	Resolve(ctx context.Context, kind Kind, itemID string) (Item, error)
	ListByKind(ctx context.Context, kind Kind) ([]Item, error)
}

type Params struct {
	fx.In

	Store docstore.Store
	Log   *zap.Logger
}

type resolver struct {
	store docstore.Store
	log   *zap.Logger
	cache cache.Cache[string, Item]
	ttl   time.Duration
}

func New(p Params) Resolver {
	return &resolver{
		store: p.Store,
		log:   p.Log.Named("catalog.resolver"),
		cache: cache.NewTTLCache[string, Item](),
		ttl:   5 * time.Minute,
	}
}

var Module = fx.Module("catalog.resolver",
	fx.Provide(New),
)

func collectionFor(kind Kind) (string, error) {
	switch kind {
	case KindService:
		return ServicesCollection, nil
	case KindProduct:
		return ProductsCollection, nil
	default:
		return "", ErrInvalidKind
	}
}

func (r *resolver) Resolve(ctx context.Context, kind Kind, itemID string) (Item, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Item{}, ErrItemNotFound
	}
	collection, err := collectionFor(kind)
	if err != nil {
		return Item{}, err
	}

	cacheKey := string(kind) + "/" + itemID
	if item, ok := r.cache.Get(cacheKey); ok {
		return item, nil
	}

	rec, err := r.store.GetDocument(ctx, collection, itemID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			r.log.Warn("catalog item missing",
				zap.String("kind", string(kind)),
				zap.String("item_id", itemID),
			)
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}

	item, err := decodeItem(rec, kind)
	if err != nil {
		return Item{}, err
	}

	r.cache.Set(cacheKey, item, r.ttl)
	return item, nil
}

func (r *resolver) ListByKind(ctx context.Context, kind Kind) ([]Item, error) {
	collection, err := collectionFor(kind)
	if err != nil {
		return nil, err
	}

	records, err := r.store.Query(ctx, collection)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(records))
	for _, rec := range records {
		item, err := decodeItem(rec, kind)
		if err != nil {
			r.log.Warn("skipping malformed catalog record", zap.String("collection", collection), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(rec docstore.Record, kind Kind) (Item, error) {
	var item Item
	if err := docstore.Decode(rec, &item); err != nil {
		return Item{}, err
	}
	item.Kind = kind
	return item, nil
}
