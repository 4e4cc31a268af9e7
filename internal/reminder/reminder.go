package reminder

import (
	"context"
	"log"
	"time"

	"ordertrack-backend/config"
	"ordertrack-backend/internal/notification"
	"ordertrack-backend/internal/store"
)

// Service periodically scans for orders whose due date is approaching and
// dispatches them to the notification worker pool.
type Service struct {
	cfg        *config.Config
	store      store.Store
	workerPool *notification.WorkerPool
}

// NewService creates a new reminder service.
func NewService(cfg *config.Config, s store.Store, wp *notification.WorkerPool) *Service {
	return &Service{
		cfg:        cfg,
		store:      s,
		workerPool: wp,
	}
}

// Run starts the reminder loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Reminder.Enabled {
		log.Println("Due-date reminders are disabled. Not starting.")
		return
	}
	log.Println("Starting due-date reminder service...")

	s.CheckOnce(ctx)

	timer := time.NewTimer(s.cfg.Reminder.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reminder service shutting down.")
			return
		case <-timer.C:
			s.CheckOnce(ctx)
			timer.Reset(s.cfg.Reminder.Interval)
		}
	}
}

// CheckOnce performs a single scan for due orders and dispatches each to the
// worker pool.
func (s *Service) CheckOnce(ctx context.Context) {
	window := time.Duration(s.cfg.Reminder.DueWithinDays) * 24 * time.Hour
	orders, err := s.store.FindDueOrders(ctx, time.Now().UTC(), window)
	if err != nil {
		log.Printf("Error scanning for due orders: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	log.Printf("Dispatching reminders for %d due orders", len(orders))
	for _, o := range orders {
		s.workerPool.Dispatch(o.ID)
	}
}
