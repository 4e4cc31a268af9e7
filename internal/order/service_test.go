package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ordertrack-backend/config"
	"ordertrack-backend/internal/apperr"
	"ordertrack-backend/internal/db"
	"ordertrack-backend/internal/model"
	"ordertrack-backend/internal/store"
)

func newTestService(t *testing.T, cfg *config.OrdersConfig) (*Service, *gorm.DB) {
	t.Helper()

	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// One connection keeps the in-memory database alive and serializes
	// concurrent transactions the way a single SQLite file would.
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(testDB))

	if cfg == nil {
		cfg = &config.OrdersConfig{AllocationRetries: 3}
	}
	return NewService(cfg, store.NewGormStore(testDB)), testDB
}

func seedCatalog(t *testing.T, testDB *gorm.DB) (model.Country, model.Machine, model.Panel) {
	t.Helper()

	country := model.Country{Name: "Germany", CreatedAt: time.Now().UTC()}
	require.NoError(t, testDB.Create(&country).Error)

	machine := model.Machine{Name: "CNC Mill", ProductCode: "CNC001", CreatedAt: time.Now().UTC()}
	require.NoError(t, testDB.Create(&machine).Error)

	panel := model.Panel{Name: "Control Panel", PanelCode: "CP001", MachineID: machine.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, testDB.Create(&panel).Error)

	return country, machine, panel
}

func TestCreate_FanOut(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, panel := seedCatalog(t, testDB)

	created, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 2}},
	}, 7)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, model.ProgressPending, created.ProgressStatus)
	assert.Equal(t, model.PaymentPending, created.PaymentStatus)

	var serials []model.Serial
	require.NoError(t, testDB.Where("order_id = ?", created.ID).Order("id ASC").Find(&serials).Error)
	require.Len(t, serials, 4) // Q machine serials + Q per attached panel

	var machineSerials, panelSerials []string
	for _, s := range serials {
		assert.Equal(t, created.ID, s.OrderID)
		assert.Equal(t, int64(7), s.IssuedBy)
		switch {
		case s.MachineID != nil && s.PanelID == nil:
			assert.Equal(t, machine.ID, *s.MachineID)
			machineSerials = append(machineSerials, s.SerialNumber)
		case s.PanelID != nil && s.MachineID == nil:
			assert.Equal(t, panel.ID, *s.PanelID)
			panelSerials = append(panelSerials, s.SerialNumber)
		default:
			t.Fatalf("serial %q must be tagged with exactly one of machine or panel", s.SerialNumber)
		}
	}

	assert.Equal(t, []string{"CNC001001", "CNC001002"}, machineSerials)
	assert.Equal(t, []string{"CP001001", "CP001002"}, panelSerials)
}

func TestCreate_SequenceContinuesAcrossOrders(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	_, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "First Customer",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 2}},
	}, 1)
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Second Customer",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.NoError(t, err)

	var serials []model.Serial
	require.NoError(t, testDB.Where("order_id = ? AND machine_id IS NOT NULL", second.ID).Find(&serials).Error)
	require.Len(t, serials, 1)
	assert.Equal(t, "CNC001003", serials[0].SerialNumber)
}

func TestCreate_ColdStartScansExistingSerials(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	// Historical serials without a counter row, inserted out of numeric
	// order. The allocator must continue from the numeric maximum.
	older := model.Order{CustomerName: "Legacy", CountryID: country.ID, ProgressStatus: model.ProgressPending, PaymentStatus: model.PaymentPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, testDB.Create(&older).Error)
	for _, sn := range []string{"CNC001010", "CNC001007"} {
		require.NoError(t, testDB.Create(&model.Serial{
			OrderID: older.ID, MachineID: &machine.ID, SerialNumber: sn, IssuedAt: time.Now().UTC(),
		}).Error)
	}

	created, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.NoError(t, err)

	var serials []model.Serial
	require.NoError(t, testDB.Where("order_id = ? AND machine_id IS NOT NULL", created.ID).Find(&serials).Error)
	require.Len(t, serials, 1)
	assert.Equal(t, "CNC001011", serials[0].SerialNumber)
}

func TestCreate_PaddingGrowsPast999(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	require.NoError(t, testDB.Create(&model.SerialCounter{Prefix: "CNC001", LastNumber: 999}).Error)

	created, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.NoError(t, err)

	var serials []model.Serial
	require.NoError(t, testDB.Where("order_id = ?", created.ID).Where("machine_id IS NOT NULL").Find(&serials).Error)
	require.Len(t, serials, 1)
	// Width grows, no wraparound.
	assert.Equal(t, "CNC0011000", serials[0].SerialNumber)
}

func TestCreate_ValidationRejectsBeforePersisting(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	testCases := []struct {
		name  string
		input CreateInput
	}{
		{
			name: "empty machine lines",
			input: CreateInput{
				CustomerName: "Acme Tools",
				CountryID:    country.ID,
			},
		},
		{
			name: "quantity below one",
			input: CreateInput{
				CustomerName: "Acme Tools",
				CountryID:    country.ID,
				MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 0}},
			},
		},
		{
			name: "unknown machine",
			input: CreateInput{
				CustomerName: "Acme Tools",
				CountryID:    country.ID,
				MachineLines: []model.MachineLine{{MachineID: 9999, Quantity: 1}},
			},
		},
		{
			name: "unknown country",
			input: CreateInput{
				CustomerName: "Acme Tools",
				CountryID:    9999,
				MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
			},
		},
		{
			name: "missing customer name",
			input: CreateInput{
				CountryID:    country.ID,
				MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input, 1)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err), "expected a validation error, got %v", err)
		})
	}

	// Nothing may have been persisted by any of the rejected attempts.
	var orderCount, serialCount int64
	testDB.Model(&model.Order{}).Count(&orderCount)
	testDB.Model(&model.Serial{}).Count(&serialCount)
	assert.Zero(t, orderCount)
	assert.Zero(t, serialCount)
}

func TestCreate_SkipMissingMachinesRestoresLegacyBehavior(t *testing.T) {
	svc, testDB := newTestService(t, &config.OrdersConfig{SkipMissingMachines: true, AllocationRetries: 3})
	country, machine, _ := seedCatalog(t, testDB)

	created, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{
			{MachineID: 9999, Quantity: 3}, // silently dropped
			{MachineID: machine.ID, Quantity: 1},
		},
	}, 1)
	require.NoError(t, err)

	var serials []model.Serial
	require.NoError(t, testDB.Where("order_id = ?", created.ID).Find(&serials).Error)
	// Only the existing machine's line minted anything.
	require.Len(t, serials, 2)
}

func TestCreate_ConcurrentOrdersNeverCollide(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), CreateInput{
				CustomerName: "Concurrent Customer",
				CountryID:    country.ID,
				MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
			}, 1)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var serialNumbers []string
	require.NoError(t, testDB.Model(&model.Serial{}).Order("serial_number ASC").Pluck("serial_number", &serialNumbers).Error)
	// Exactly one got 001 and the other 002: no duplicate, no lost allocation.
	assert.Equal(t, []string{"CNC001001", "CNC001002"}, serialNumbers)
}

func TestCreate_RetriesExhaustedOnPersistentCollision(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	// A counter lagging behind an already-issued serial makes every attempt
	// compute number 2 and collide with the existing row. Each rollback
	// restores the counter, so the collision repeats until the retry budget
	// is spent.
	legacy := model.Order{CustomerName: "Legacy", CountryID: country.ID, ProgressStatus: model.ProgressPending, PaymentStatus: model.PaymentPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, testDB.Create(&legacy).Error)
	require.NoError(t, testDB.Create(&model.Serial{
		OrderID: legacy.ID, MachineID: &machine.ID, SerialNumber: "CNC001002", IssuedAt: time.Now().UTC(),
	}).Error)
	require.NoError(t, testDB.Create(&model.SerialCounter{Prefix: "CNC001", LastNumber: 1}).Error)

	_, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err), "expected a conflict error, got %v", err)
	assert.True(t, store.IsUniqueViolation(err), "conflict must carry the unique violation: %v", err)

	// None of the failed attempts may leave an order or serial behind.
	var orderCount, serialCount int64
	testDB.Model(&model.Order{}).Count(&orderCount)
	testDB.Model(&model.Serial{}).Count(&serialCount)
	assert.Equal(t, int64(1), orderCount)
	assert.Equal(t, int64(1), serialCount)

	var counter model.SerialCounter
	require.NoError(t, testDB.First(&counter, "prefix = ?", "CNC001").Error)
	assert.Equal(t, int64(1), counter.LastNumber)
}

func TestCreate_AlwaysAttemptsOnceWithZeroRetries(t *testing.T) {
	svc, testDB := newTestService(t, &config.OrdersConfig{})
	country, machine, _ := seedCatalog(t, testDB)

	created, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestUpdateStatus(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	created, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.NoError(t, err)

	progress := model.ProgressCompleted
	payment := model.PaymentPaid
	updated, err := svc.UpdateStatus(context.Background(), created.ID, &progress, &payment)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, updated.ProgressStatus)
	assert.Equal(t, model.PaymentPaid, updated.PaymentStatus)

	// The enumerations are free-standing: Paid + Pending progress is legal.
	backToPending := model.ProgressPending
	updated, err = svc.UpdateStatus(context.Background(), created.ID, &backToPending, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressPending, updated.ProgressStatus)
	assert.Equal(t, model.PaymentPaid, updated.PaymentStatus)

	bogus := "Shipped"
	_, err = svc.UpdateStatus(context.Background(), created.ID, &bogus, nil)
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.UpdateStatus(context.Background(), 9999, &progress, nil)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDelete_CascadesSerialsWithoutReuse(t *testing.T) {
	svc, testDB := newTestService(t, nil)
	country, machine, _ := seedCatalog(t, testDB)

	first, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 2}},
	}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), first.ID))

	var serialCount int64
	testDB.Model(&model.Serial{}).Where("order_id = ?", first.ID).Count(&serialCount)
	assert.Zero(t, serialCount)

	// Deleted numbers leave a gap, they are never reissued.
	second, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Tools",
		CountryID:    country.ID,
		MachineLines: []model.MachineLine{{MachineID: machine.ID, Quantity: 1}},
	}, 1)
	require.NoError(t, err)

	var serials []model.Serial
	require.NoError(t, testDB.Where("order_id = ?", second.ID).Where("machine_id IS NOT NULL").Find(&serials).Error)
	require.Len(t, serials, 1)
	assert.Equal(t, "CNC001003", serials[0].SerialNumber)

	assert.True(t, apperr.IsNotFound(svc.Delete(context.Background(), first.ID)))
}
