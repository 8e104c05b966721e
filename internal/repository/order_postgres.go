package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var ErrDuplicateOrderNumber = errors.New("order number already exists")

type PostgresOrderRepository struct {
	db *sql.DB
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

func OpenPostgres(cred *Credentials) (*sql.DB, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return db, nil
}

func RunMigrations(db *sql.DB, migrationsDirPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

const orderColumns = `id, order_number, owner_id, items, total_amount, status,
	payment_method, payment_status, bank_transfer_status, receipt_ref,
	notes, admin_notes, admin_approved_at, scheduled_date, created_at, updated_at`

func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.OwnerID,
		itemsJSON,
		order.TotalAmount.String(),
		order.Status,
		order.PaymentMethod,
		order.PaymentStatus,
		string(order.BankTransferStatus),
		order.ReceiptRef,
		order.Notes,
		order.AdminNotes,
		order.AdminApprovedAt,
		order.ScheduledDate)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (r *PostgresOrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresOrderRepository) ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by owner: %w", err)
	}
	return r.collectOrders(rows)
}

func (r *PostgresOrderRepository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return r.collectOrders(rows)
}

// UpdateStatusGuarded is the compare-and-set every transition funnels
// through: the WHERE clause re-checks the status the caller read, so two
// concurrent admin actions cannot both win.
func (r *PostgresOrderRepository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, expected domain.OrderStatus, patch StatusPatch) (*domain.Order, error) {
	query := `UPDATE orders
	          SET status = $1,
	              payment_status = $2,
	              bank_transfer_status = $3,
	              receipt_ref = COALESCE($4, receipt_ref),
	              admin_notes = COALESCE($5, admin_notes),
	              admin_approved_at = COALESCE($6, admin_approved_at),
	              updated_at = NOW()
	          WHERE id = $7 AND status = $8`

	result, err := r.db.ExecContext(ctx, query,
		patch.Status,
		patch.PaymentStatus,
		string(patch.BankTransferStatus),
		patch.ReceiptRef,
		patch.AdminNotes,
		patch.AdminApprovedAt,
		id,
		expected)
	if err != nil {
		return nil, fmt.Errorf("guarded status update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("guarded status update rows: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing order.
		if _, getErr := r.GetOrder(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleOrderState
	}

	return r.GetOrder(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresOrderRepository) scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON []byte
	var totalAmount string
	var bankTransferStatus string
	var receiptRef, notes, adminNotes sql.NullString
	var adminApprovedAt, scheduledDate sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.OwnerID,
		&itemsJSON,
		&totalAmount,
		&order.Status,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&bankTransferStatus,
		&receiptRef,
		&notes,
		&adminNotes,
		&adminApprovedAt,
		&scheduledDate,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	total, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt total amount %q: %w", totalAmount, err)
	}
	order.TotalAmount = total
	order.BankTransferStatus = domain.BankTransferStatus(bankTransferStatus)
	order.ReceiptRef = receiptRef.String
	order.Notes = notes.String
	order.AdminNotes = adminNotes.String
	if adminApprovedAt.Valid {
		t := adminApprovedAt.Time
		order.AdminApprovedAt = &t
	}
	if scheduledDate.Valid {
		t := scheduledDate.Time
		order.ScheduledDate = &t
	}

	return &order, nil
}

func (r *PostgresOrderRepository) collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}
