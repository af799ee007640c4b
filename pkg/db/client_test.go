package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID     int
	Tenant string `gorm:"uniqueIndex:idx_test_tenant_code"`
	Code   int    `gorm:"uniqueIndex:idx_test_tenant_code"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbclient_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestPing(t *testing.T) {
	client := NewFromGorm(newTestDB(t), DriverSQLite)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	if client.Driver() != DriverSQLite {
		t.Fatalf("unexpected driver %q", client.Driver())
	}
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	conn := newTestDB(t)
	if err := conn.Create(&testModel{Tenant: "a", Code: 1}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := conn.Create(&testModel{Tenant: "a", Code: 1}).Error
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if !IsUniqueViolation(err, "test_models.code") {
		t.Fatalf("expected column match, got %v", err)
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Fatalf("constraint filter should not match %v", err)
	}
}

func TestIsUniqueViolation_Postgres(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_variants_tenant_serial"}
	wrapped := fmt.Errorf("insert variant: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("expected pg unique violation")
	}
	if !IsUniqueViolation(wrapped, "ux_variants_tenant_serial") {
		t.Fatal("expected constraint match")
	}
	if IsUniqueViolation(wrapped, "ux_sales_tenant_number") {
		t.Fatal("unexpected constraint match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
}

func TestIsUniqueViolation_LibPQ(t *testing.T) {
	err := fmt.Errorf("insert sale: %w", &pq.Error{Code: "23505", Constraint: "ux_sales_tenant_number"})
	if !IsUniqueViolation(err, "ux_sales_tenant_number") {
		t.Fatal("expected pq unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
}

func TestIsUniqueViolation_Other(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is not a violation")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatal("generic errors are not violations")
	}
	if !IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)) {
		t.Fatal("expected wrapped not found to match")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := newTestDB(t)
	client := NewFromGorm(conn, DriverSQLite)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Tenant: "a", Code: 1}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&testModel{Tenant: "b", Code: 1}).Error
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	var tenants []string
	if err := conn.Model(&testModel{}).Pluck("tenant", &tenants).Error; err != nil {
		t.Fatalf("pluck: %v", err)
	}
	if len(tenants) != 1 || tenants[0] != "b" {
		t.Fatalf("unexpected rows %v", tenants)
	}
}

func TestIsUniqueViolation_SQLiteCheckConstraint(t *testing.T) {
	check := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}
	if IsUniqueViolation(fmt.Errorf("insert sale item: %w", check), "") {
		t.Fatal("check constraint is not a unique violation")
	}
}
