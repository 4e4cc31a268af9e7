package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ordertrack-backend/internal/apperr"
	"ordertrack-backend/internal/model"
	"ordertrack-backend/internal/serial"
)

// Store defines the interface for all database operations the services need.
type Store interface {
	DB() *gorm.DB

	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error

	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
	GetPanelsByMachine(ctx context.Context, machineID int64) ([]model.Panel, error)
	CountryExists(ctx context.Context, id int64) (bool, error)
	ProductCodeTaken(ctx context.Context, code string) (bool, error)

	CreateOrderWithSerials(ctx context.Context, order *model.Order, issuedBy int64, skipMissing bool) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, progress, payment *string) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	FindDueOrders(ctx context.Context, now time.Time, window time.Duration) ([]model.Order, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *gormStore) GetMachine(ctx context.Context, id int64) (*model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).First(&machine, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &machine, nil
}

// GetPanelsByMachine returns the machine's panels in catalog insertion order.
func (s *gormStore) GetPanelsByMachine(ctx context.Context, machineID int64) ([]model.Panel, error) {
	var panels []model.Panel
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("id ASC").
		Find(&panels).Error
	return panels, err
}

func (s *gormStore) CountryExists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Country{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ProductCodeTaken checks code uniqueness across the union of machine and
// panel codes: serials for two different products must never collide.
func (s *gormStore) ProductCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Machine{}).Where("product_code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := s.db.WithContext(ctx).Model(&model.Panel{}).Where("panel_code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateOrderWithSerials persists the order header and every serial it mints
// in a single transaction. For each machine line of quantity Q with P
// attached panels, Q machine serials and Q serials per panel are minted, in
// input line order, machine serials before that line's panel serials. Any
// failure rolls the whole order back, order row included.
func (s *gormStore) CreateOrderWithSerials(ctx context.Context, order *model.Order, issuedBy int64, skipMissing bool) error {
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		counters := make(map[string]*model.SerialCounter)
		var minted []model.Serial

		for _, line := range order.MachineLines {
			var machine model.Machine
			err := tx.First(&machine, line.MachineID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if skipMissing {
					continue
				}
				return apperr.NewValidationError("machine %d does not exist", line.MachineID)
			}
			if err != nil {
				return fmt.Errorf("failed to load machine %d: %w", line.MachineID, err)
			}

			for i := 0; i < line.Quantity; i++ {
				n, err := s.nextNumber(tx, counters, machine.ProductCode)
				if err != nil {
					return err
				}
				minted = append(minted, model.Serial{
					OrderID:      order.ID,
					MachineID:    &machine.ID,
					SerialNumber: serial.Format(machine.ProductCode, n),
					IssuedBy:     issuedBy,
					IssuedAt:     now,
				})
			}

			var panels []model.Panel
			if err := tx.Where("machine_id = ?", machine.ID).Order("id ASC").Find(&panels).Error; err != nil {
				return fmt.Errorf("failed to load panels for machine %d: %w", machine.ID, err)
			}
			for _, panel := range panels {
				for i := 0; i < line.Quantity; i++ {
					n, err := s.nextNumber(tx, counters, panel.PanelCode)
					if err != nil {
						return err
					}
					minted = append(minted, model.Serial{
						OrderID:      order.ID,
						PanelID:      &panel.ID,
						SerialNumber: serial.Format(panel.PanelCode, n),
						IssuedBy:     issuedBy,
						IssuedAt:     now,
					})
				}
			}
		}

		if len(minted) > 0 {
			if err := tx.Create(&minted).Error; err != nil {
				return fmt.Errorf("failed to insert serial batch: %w", err)
			}
		}

		if len(counters) > 0 {
			counterRows := make([]model.SerialCounter, 0, len(counters))
			for _, c := range counters {
				counterRows = append(counterRows, *c)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "prefix"}},
				DoUpdates: clause.AssignmentColumns([]string{"last_number"}),
			}).Create(&counterRows).Error; err != nil {
				return fmt.Errorf("failed to update serial counters: %w", err)
			}
		}

		order.Serials = minted
		return nil
	})
}

// nextNumber reserves the next sequence number for a prefix within the
// transaction. Counter rows are loaded once per order and kept in the
// counters map so consecutive units of one product get consecutive numbers.
// A missing counter row is seeded from a scan of the existing serials for the
// prefix, taking the numeric maximum rather than the newest row.
func (s *gormStore) nextNumber(tx *gorm.DB, counters map[string]*model.SerialCounter, prefix string) (int64, error) {
	if c, ok := counters[prefix]; ok {
		c.LastNumber++
		return c.LastNumber, nil
	}

	c := &model.SerialCounter{Prefix: prefix}
	err := tx.First(c, "prefix = ?", prefix).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var serialNumbers []string
		if err := tx.Model(&model.Serial{}).
			Where("serial_number LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
			Pluck("serial_number", &serialNumbers).Error; err != nil {
			return 0, fmt.Errorf("failed to scan serials for prefix %q: %w", prefix, err)
		}
		c.LastNumber = serial.MaxSuffix(serialNumbers, prefix)
	} else if err != nil {
		return 0, fmt.Errorf("failed to load serial counter for prefix %q: %w", prefix, err)
	}

	c.LastNumber++
	counters[prefix] = c
	return c.LastNumber, nil
}

func (s *gormStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Preload("Serials").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus sets the progress and/or payment status. The two
// enumerations are free-standing: any value may follow any other.
func (s *gormStore) UpdateOrderStatus(ctx context.Context, id int64, progress, payment *string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, id).Error; err != nil {
			return err
		}
		updates := map[string]any{}
		if progress != nil {
			updates["progress_status"] = *progress
			order.ProgressStatus = *progress
		}
		if payment != nil {
			updates["payment_status"] = *payment
			order.PaymentStatus = *payment
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&order).Updates(updates).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// DeleteOrder removes the order and, by cascade, every serial it owns. The
// serial numbers are not reusable afterwards: the counters keep their values,
// leaving a permitted gap in the sequence.
func (s *gormStore) DeleteOrder(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Order{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("order_id = ?", id).Delete(&model.Serial{}).Error; err != nil {
			return fmt.Errorf("failed to cascade serials for order %d: %w", id, err)
		}
		return tx.Exec("DELETE FROM subscription_order_mapping WHERE order_id = ?", id).Error
	})
}

// FindDueOrders returns unfinished orders whose due date falls inside the
// reminder window.
func (s *gormStore) FindDueOrders(ctx context.Context, now time.Time, window time.Duration) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date <= ?", now.Add(window)).
		Where("progress_status NOT IN ?", []string{model.ProgressCompleted, model.ProgressConfirmed}).
		Find(&orders).Error
	return orders, err
}

// likeEscaper neutralizes LIKE wildcards so a product code containing % or _
// only ever matches itself as a literal prefix.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// IsUniqueViolation reports whether err is a unique-constraint failure. The
// sqlite driver pinned here predates gorm's error translation, so the driver
// messages are matched as well.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
