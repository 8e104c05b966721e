package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type PostgresCatalogRepository struct {
	db *sql.DB
}

func NewPostgresCatalogRepository(db *sql.DB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

const serviceColumns = `id, name, description, price, active, available, options, created_at, updated_at`

func (r *PostgresCatalogRepository) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	svc, err := scanService(r.db.QueryRowContext(ctx, query, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	return svc, err
}

func (r *PostgresCatalogRepository) ListServices(ctx context.Context) ([]*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var services []*domain.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return services, nil
}

func scanService(row rowScanner) (*domain.Service, error) {
	var svc domain.Service
	var price string
	var description sql.NullString
	var optionsJSON []byte

	err := row.Scan(
		&svc.ID,
		&svc.Name,
		&description,
		&price,
		&svc.Active,
		&svc.Available,
		&optionsJSON,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}

	svc.Description = description.String
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("corrupt price %q on service %s: %w", price, svc.ID, err)
	}
	svc.Price = p
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &svc.Options); err != nil {
			return nil, fmt.Errorf("unmarshal service options: %w", err)
		}
	}
	return &svc, nil
}
