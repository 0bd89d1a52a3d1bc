package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/glowhub/portal/internal/cart/domain"
	"github.com/glowhub/portal/internal/catalog"
	"github.com/glowhub/portal/internal/docstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	LC      fx.Lifecycle `optional:"true"`
	Store   docstore.Store
	Catalog catalog.Resolver
	Log     *zap.Logger
	GenID   *snowflake.Node
}

// command is one queued remote write. onErr runs on the worker
// goroutine when the write fails.
type command struct {
	run   func(ctx context.Context) error
	onErr func(err error)
}

type Service struct {
	store   docstore.Store
	catalog catalog.Resolver
	log     *zap.Logger
	genID   *snowflake.Node

	mu    sync.RWMutex
	lines map[string]map[string]cartdomain.Item

	commands chan command
	pending  sync.WaitGroup
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(p Params) cartdomain.Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:    p.Store,
		catalog:  p.Catalog,
		log:      p.Log.Named("cart.service"),
		genID:    p.GenID,
		lines:    make(map[string]map[string]cartdomain.Item),
		commands: make(chan command, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.worker(ctx)

	if p.LC != nil {
		p.LC.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return s.Close()
			},
		})
	}
	return s
}

// Close stops the write worker after the queued commands settle.
func (s *Service) Close() error {
	s.pending.Wait()
	s.cancel()
	<-s.done
	return nil
}

func (s *Service) worker(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			if err := cmd.run(ctx); err != nil {
				s.log.Error("cart remote write failed", zap.Error(err))
				if cmd.onErr != nil {
					cmd.onErr(err)
				}
			}
			s.pending.Done()
		}
	}
}

func (s *Service) enqueue(cmd command) {
	s.pending.Add(1)
	s.commands <- cmd
}

// drain blocks until every queued remote write has settled. Purge and
// Close rely on it; tests use it to observe the remote state.
func (s *Service) drain() {
	s.pending.Wait()
}

func (s *Service) AddItem(ctx context.Context, customerID string, kind catalog.Kind, catalogItemID string) (cartdomain.Item, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return cartdomain.Item{}, cartdomain.ErrInvalidCustomer
	}

	catalogItem, err := s.catalog.Resolve(ctx, kind, catalogItemID)
	if err != nil {
		return cartdomain.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.lines[customerID]
	if byID == nil {
		byID = make(map[string]cartdomain.Item)
		s.lines[customerID] = byID
	}

	for id, line := range byID {
		if line.Kind != kind || line.ItemID != catalogItem.ID || line.Status != cartdomain.StatusActive {
			continue
		}
		if kind == catalog.KindService {
			return cartdomain.Item{}, cartdomain.ErrDuplicateService
		}
		line.Quantity++
		byID[id] = line
		s.enqueueQuantityWrite(customerID, line.ID, line.Quantity)
		return line, nil
	}

	line := cartdomain.Item{
		ID:         s.genID.Generate().String(),
		CustomerID: customerID,
		Kind:       kind,
		ItemID:     catalogItem.ID,
		Name:       catalogItem.Name,
		Price:      catalogItem.Price,
		Quantity:   1,
		Status:     cartdomain.StatusActive,
	}
	byID[line.ID] = line

	rec, err := docstore.Encode(line)
	if err != nil {
		delete(byID, line.ID)
		return cartdomain.Item{}, err
	}
	delete(rec, "id")
	rec["addedAt"] = docstore.ServerTimestamp

	// Add failures are not rolled back; the next reconciliation pass
	// corrects the projection.
	s.enqueue(command{
		run: func(ctx context.Context) error {
			return s.store.SetDocument(ctx, cartdomain.Collection, line.ID, rec)
		},
	})
	return line, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, customerID, cartItemID string, quantity int64) error {
	if quantity < 1 {
		return s.RemoveItem(ctx, customerID, cartItemID)
	}

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return cartdomain.ErrInvalidCustomer
	}

	s.mu.Lock()
	line, ok := s.lines[customerID][cartItemID]
	if !ok || line.Status != cartdomain.StatusActive {
		s.mu.Unlock()
		return cartdomain.ErrItemNotFound
	}
	line.Quantity = quantity
	s.lines[customerID][cartItemID] = line
	s.mu.Unlock()

	s.enqueueQuantityWrite(customerID, cartItemID, quantity)
	return nil
}

func (s *Service) enqueueQuantityWrite(customerID, cartItemID string, quantity int64) {
	s.enqueue(command{
		run: func(ctx context.Context) error {
			return s.store.UpdateDocument(ctx, cartdomain.Collection, cartItemID, docstore.Record{
				"quantity": quantity,
			})
		},
		// Quantity is visually load-bearing, so a failed write falls
		// back to the authoritative remote state.
		onErr: func(error) { s.resync(customerID) },
	})
}

func (s *Service) RemoveItem(ctx context.Context, customerID, cartItemID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return cartdomain.ErrInvalidCustomer
	}

	s.mu.Lock()
	line, ok := s.lines[customerID][cartItemID]
	if !ok {
		s.mu.Unlock()
		return cartdomain.ErrItemNotFound
	}
	line.Status = cartdomain.StatusRemoved
	delete(s.lines[customerID], cartItemID)
	s.mu.Unlock()

	s.enqueue(command{
		run: func(ctx context.Context) error {
			return s.store.DeleteDocument(ctx, cartdomain.Collection, cartItemID)
		},
		onErr: func(error) { s.resync(customerID) },
	})
	return nil
}

func (s *Service) Items(customerID string) []cartdomain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]cartdomain.Item, 0, len(s.lines[customerID]))
	for _, line := range s.lines[customerID] {
		if line.Status != cartdomain.StatusActive {
			continue
		}
		items = append(items, line)
	}
	cartdomain.SortItems(items)
	return items
}

func (s *Service) Purge(ctx context.Context, customerID string, cartItemIDs ...string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return cartdomain.ErrInvalidCustomer
	}

	// Queued writes may still be in flight for the lines being purged.
	// They must settle first, otherwise a late add or quantity write
	// recreates a purchased line after its delete.
	s.drain()

	s.mu.Lock()
	for _, id := range cartItemIDs {
		delete(s.lines[customerID], id)
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range cartItemIDs {
		if err := s.store.DeleteDocument(ctx, cartdomain.Collection, id); err != nil {
			s.log.Error("cart purge delete failed",
				zap.String("customer_id", customerID),
				zap.String("cart_item_id", id),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) ApplySnapshot(customerID string, items []cartdomain.Item) bool {
	incoming := make([]cartdomain.Item, len(items))
	copy(incoming, items)
	cartdomain.SortItems(incoming)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make([]cartdomain.Item, 0, len(s.lines[customerID]))
	for _, line := range s.lines[customerID] {
		current = append(current, line)
	}
	cartdomain.SortItems(current)

	if reflect.DeepEqual(current, incoming) {
		return false
	}

	byID := make(map[string]cartdomain.Item, len(incoming))
	for _, line := range incoming {
		byID[line.ID] = line
	}
	s.lines[customerID] = byID
	return true
}

// resync replaces the customer's projection from the store after a
// failed removal or quantity write.
func (s *Service) resync(customerID string) {
	records, err := s.store.Query(context.Background(), cartdomain.Collection,
		docstore.Eq("customerId", customerID),
	)
	if err != nil {
		s.log.Error("cart resync failed", zap.String("customer_id", customerID), zap.Error(err))
		return
	}

	items := make([]cartdomain.Item, 0, len(records))
	for _, rec := range records {
		var line cartdomain.Item
		if err := docstore.Decode(rec, &line); err != nil {
			s.log.Warn("skipping malformed cart record", zap.Error(err))
			continue
		}
		items = append(items, line)
	}
	s.ApplySnapshot(customerID, items)
}
