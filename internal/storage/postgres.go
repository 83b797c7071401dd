package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://db/migrations/postgres",
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("could not run database migrations: %w", err)
	}

	log.Println("Database connection and migration successful")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateDispatch(ctx context.Context, d *Dispatch) error {
	query := `INSERT INTO dispatches(id, kind, route_name, status, total_count, success_count, failure_count, created_at) VALUES($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query, d.ID, d.Kind, d.RouteName, d.Status, d.TotalCount, d.SuccessCount, d.FailureCount, d.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return Errors.AlreadyExists
		}
		return fmt.Errorf("error creating dispatch: %w", err)
	}

	return nil
}

func (s *PostgresStore) FinishDispatch(ctx context.Context, dispatchID, status string, success, failure int) error {
	query := `UPDATE dispatches SET status = $1, success_count = $2, failure_count = $3, total_count = $4 WHERE id = $5`
	_, err := s.db.ExecContext(ctx, query, status, success, failure, success+failure, dispatchID)
	return err
}

func (s *PostgresStore) GetDispatch(ctx context.Context, dispatchID string) (*Dispatch, error) {
	query := `SELECT id, kind, route_name, status, total_count, success_count, failure_count, created_at FROM dispatches WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, dispatchID)

	var d Dispatch
	err := row.Scan(&d.ID, &d.Kind, &d.RouteName, &d.Status, &d.TotalCount, &d.SuccessCount, &d.FailureCount, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, Errors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting dispatch: %w", err)
	}

	return &d, nil
}

func (s *PostgresStore) BulkInsertReceipts(ctx context.Context, receipts []DeliveryReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO delivery_receipts(id, dispatch_id, user_id, token, status, status_reason, dispatched_at) VALUES($1, $2, $3, $4, $5, $6, $7)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range receipts {
		_, err := stmt.ExecContext(ctx, r.ID, r.DispatchID, r.UserID, r.Token, r.Status, r.StatusReason, r.DispatchedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) ListFailedReceipts(ctx context.Context, dispatchID string) ([]DeliveryReceipt, error) {
	query := `SELECT id, dispatch_id, user_id, token, status, status_reason, dispatched_at FROM delivery_receipts WHERE dispatch_id = $1 AND status = 'FAILED'`

	rows, err := s.db.QueryContext(ctx, query, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("error listing receipts: %w", err)
	}
	defer rows.Close()

	var receipts []DeliveryReceipt
	for rows.Next() {
		var r DeliveryReceipt
		if err := rows.Scan(&r.ID, &r.DispatchID, &r.UserID, &r.Token, &r.Status, &r.StatusReason, &r.DispatchedAt); err != nil {
			return nil, fmt.Errorf("error scanning receipt: %w", err)
		}
		receipts = append(receipts, r)
	}

	return receipts, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
