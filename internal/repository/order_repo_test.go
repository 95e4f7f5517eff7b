package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"checkout/internal/model"
	"checkout/pkg/utils"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm DB: %v", err)
	}

	return gormDB, mock
}

func TestOrderRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{
		OrderID:   "ORD1234567890",
		UserID:    1,
		Amount:    2500,
		Status:    model.OrderStatusCreated,
		TraceID:   "trace-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `orders`").
		WithArgs(
			order.OrderID, order.UserID, order.Amount, order.Status,
			order.TraceID, order.PaidAt, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(ctx, order); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestOrderRepository_GetByOrderID(t *testing.T) {
	db, mock := setupMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "order_id", "user_id", "amount", "status"}).
		AddRow(1, "ORD1234567890", 1, 2500, model.OrderStatusPaid)

	mock.ExpectQuery("SELECT \\* FROM `orders`").
		WithArgs("ORD1234567890", 1).
		WillReturnRows(rows)

	order, err := repo.GetByOrderID(ctx, "ORD1234567890")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if order.Status != model.OrderStatusPaid {
		t.Errorf("Expected status %s, got %s", model.OrderStatusPaid, order.Status)
	}
	if order.Amount != 2500 {
		t.Errorf("Expected amount 2500, got %d", order.Amount)
	}
}

func TestOrderRepository_GetByOrderID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `orders`").
		WithArgs("ORD-missing", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.GetByOrderID(ctx, "ORD-missing")
	if !errors.Is(err, utils.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_UpdateStatusIf(t *testing.T) {
	db, mock := setupMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `orders`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	affected, err := repo.UpdateStatusIf(ctx, "ORD1234567890", model.OrderStatusValidated, model.OrderStatusPaid)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if affected != 1 {
		t.Errorf("Expected 1 row affected, got %d", affected)
	}
}

func TestOrderRepository_UpdateStatusIf_LostRace(t *testing.T) {
	db, mock := setupMockDB(t)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	repo := NewOrderRepository(db)
	ctx := context.Background()

	// Another writer already moved the order, so the guard matches nothing.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `orders`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	affected, err := repo.UpdateStatusIf(ctx, "ORD1234567890", model.OrderStatusValidated, model.OrderStatusPaid)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if affected != 0 {
		t.Errorf("Expected 0 rows affected, got %d", affected)
	}
}
