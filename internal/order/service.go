package order

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"ordertrack-backend/config"
	"ordertrack-backend/internal/apperr"
	"ordertrack-backend/internal/model"
	"ordertrack-backend/internal/store"
)

// CreateInput is the validated payload for order creation.
type CreateInput struct {
	CustomerName     string
	ShippingLocation string
	CountryID        int64
	QuoteNumber      string
	InvoiceNumber    string
	DueDate          *time.Time
	MachineLines     []model.MachineLine
}

// Service orchestrates order fulfillment: it validates the input, expands
// machine lines into the full serial batch (one per machine unit plus one per
// unit for every attached panel) and persists order and serials as one unit
// of work.
type Service struct {
	cfg     *config.OrdersConfig
	retries int
	store   store.Store

	// prefixLocks serializes serial allocation per product code for the
	// duration of one order's full batch.
	mu          sync.Mutex
	prefixLocks map[string]*sync.Mutex
}

// NewService creates a new order service. At least one allocation attempt is
// always made, whatever the configured retry count says.
func NewService(cfg *config.OrdersConfig, s store.Store) *Service {
	retries := cfg.AllocationRetries
	if retries < 1 {
		retries = 1
	}
	return &Service{
		cfg:         cfg,
		retries:     retries,
		store:       s,
		prefixLocks: make(map[string]*sync.Mutex),
	}
}

// Create validates the input, mints all serials and persists everything
// atomically. On a serial-number collision (possible when several replicas
// share one database) the whole batch is retried with recomputed numbers, a
// bounded number of times.
func (s *Service) Create(ctx context.Context, input CreateInput, actingUserID int64) (*model.Order, error) {
	prefixes, err := s.validate(ctx, input)
	if err != nil {
		return nil, err
	}

	unlock := s.lockPrefixes(prefixes)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		order := &model.Order{
			CustomerName:     input.CustomerName,
			ShippingLocation: input.ShippingLocation,
			CountryID:        input.CountryID,
			QuoteNumber:      input.QuoteNumber,
			InvoiceNumber:    input.InvoiceNumber,
			DueDate:          input.DueDate,
			ProgressStatus:   model.ProgressPending,
			PaymentStatus:    model.PaymentPending,
			MachineLines:     input.MachineLines,
		}
		order.CreatedBy = actingUserID

		err := s.store.CreateOrderWithSerials(ctx, order, actingUserID, s.cfg.SkipMissingMachines)
		if err == nil {
			return order, nil
		}
		if apperr.IsValidation(err) {
			return nil, err
		}
		if !store.IsUniqueViolation(err) {
			return nil, apperr.NewStorageError("order creation failed", err)
		}

		// The transaction rolled back, so the counters were restored and the
		// next attempt re-reads and recomputes every number.
		log.Printf("serial collision on order creation (attempt %d/%d), retrying", attempt+1, s.retries)
		lastErr = err
	}

	return nil, apperr.NewConflictError("serial allocation kept colliding", lastErr)
}

// validate rejects malformed input before anything is persisted and returns
// the set of product-code prefixes the order will allocate from.
func (s *Service) validate(ctx context.Context, input CreateInput) ([]string, error) {
	if input.CustomerName == "" {
		return nil, apperr.NewValidationError("customer name is required")
	}
	if len(input.MachineLines) == 0 {
		return nil, apperr.NewValidationError("order must contain at least one machine line")
	}

	ok, err := s.store.CountryExists(ctx, input.CountryID)
	if err != nil {
		return nil, apperr.NewStorageError("country lookup failed", err)
	}
	if !ok {
		return nil, apperr.NewValidationError("country %d does not exist", input.CountryID)
	}

	prefixSet := make(map[string]struct{})
	for _, line := range input.MachineLines {
		if line.Quantity < 1 {
			return nil, apperr.NewValidationError("machine %d: quantity must be at least 1", line.MachineID)
		}

		machine, err := s.store.GetMachine(ctx, line.MachineID)
		if err != nil {
			return nil, apperr.NewStorageError("machine lookup failed", err)
		}
		if machine == nil {
			if s.cfg.SkipMissingMachines {
				log.Printf("order line references unknown machine %d, skipping line", line.MachineID)
				continue
			}
			return nil, apperr.NewValidationError("machine %d does not exist", line.MachineID)
		}

		prefixSet[machine.ProductCode] = struct{}{}
		panels, err := s.store.GetPanelsByMachine(ctx, machine.ID)
		if err != nil {
			return nil, apperr.NewStorageError("panel lookup failed", err)
		}
		for _, p := range panels {
			prefixSet[p.PanelCode] = struct{}{}
		}
	}

	prefixes := make([]string, 0, len(prefixSet))
	for p := range prefixSet {
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

// lockPrefixes acquires the per-prefix mutexes in sorted order, so two orders
// touching overlapping prefix sets can never deadlock.
func (s *Service) lockPrefixes(prefixes []string) func() {
	sort.Strings(prefixes)

	locks := make([]*sync.Mutex, 0, len(prefixes))
	for _, prefix := range prefixes {
		locks = append(locks, s.lockFor(prefix))
	}
	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (s *Service) lockFor(prefix string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.prefixLocks[prefix]
	if !ok {
		l = &sync.Mutex{}
		s.prefixLocks[prefix] = l
	}
	return l
}

// UpdateStatus sets the order's progress and/or payment status. No transition
// graph is enforced; only enum membership is checked.
func (s *Service) UpdateStatus(ctx context.Context, id int64, progress, payment *string) (*model.Order, error) {
	if progress != nil && !model.ValidProgressStatus(*progress) {
		return nil, apperr.NewValidationError("invalid progress status %q", *progress)
	}
	if payment != nil && !model.ValidPaymentStatus(*payment) {
		return nil, apperr.NewValidationError("invalid payment status %q", *payment)
	}

	order, err := s.store.UpdateOrderStatus(ctx, id, progress, payment)
	if err != nil {
		return nil, apperr.NewStorageError("order status update failed", err)
	}
	if order == nil {
		return nil, apperr.NewNotFoundError("order", id)
	}
	return order, nil
}

// Get returns the order with its serials.
func (s *Service) Get(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, apperr.NewStorageError("order lookup failed", err)
	}
	if order == nil {
		return nil, apperr.NewNotFoundError("order", id)
	}
	return order, nil
}

// Delete removes the order and cascades to its serials.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.DeleteOrder(ctx, id)
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NewNotFoundError("order", id)
	}
	return apperr.NewStorageError("order deletion failed", err)
}
