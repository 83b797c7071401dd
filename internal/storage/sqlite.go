package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://db/migrations/sqlite",
		"sqlite",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("could not run database migrations: %w", err)
	}

	log.Println("Database connection and migration successful")
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) CreateDispatch(ctx context.Context, d *Dispatch) error {
	query := `INSERT INTO dispatches(id, kind, route_name, status, total_count, success_count, failure_count, created_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, d.ID, d.Kind, d.RouteName, d.Status, d.TotalCount, d.SuccessCount, d.FailureCount, d.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Errors.AlreadyExists
		}
		return fmt.Errorf("error creating dispatch: %w", err)
	}

	return nil
}

func (s *SQLStore) FinishDispatch(ctx context.Context, dispatchID, status string, success, failure int) error {
	query := `UPDATE dispatches SET status = ?, success_count = ?, failure_count = ?, total_count = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, status, success, failure, success+failure, dispatchID)
	return err
}

func (s *SQLStore) GetDispatch(ctx context.Context, dispatchID string) (*Dispatch, error) {
	query := `SELECT id, kind, route_name, status, total_count, success_count, failure_count, created_at FROM dispatches WHERE id = ?`
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

func (s *SQLStore) BulkInsertReceipts(ctx context.Context, receipts []DeliveryReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO delivery_receipts(id, dispatch_id, user_id, token, status, status_reason, dispatched_at) VALUES(?, ?, ?, ?, ?, ?, ?)`
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

func (s *SQLStore) ListFailedReceipts(ctx context.Context, dispatchID string) ([]DeliveryReceipt, error) {
	query := `SELECT id, dispatch_id, user_id, token, status, status_reason, dispatched_at FROM delivery_receipts WHERE dispatch_id = ? AND status = 'FAILED'`

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

func (s *SQLStore) Close() error {
	return s.db.Close()
}
