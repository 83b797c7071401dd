package storage

import (
	"context"
	"errors"
)

var Errors = struct {
	NotFound      error
	AlreadyExists error
}{
	NotFound:      errors.New("not found"),
	AlreadyExists: errors.New("already exists"),
}

// Dispatch is the audit row for one fan-out attempt.
type Dispatch struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	RouteName    string `json:"route_name"`
	Status       string `json:"status"`
	TotalCount   int    `json:"total_count"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	CreatedAt    string `json:"created_at"`
}

// DeliveryReceipt records one recipient a dispatch failed to reach, with
// enough detail for the token sanitizer and operators to act on.
type DeliveryReceipt struct {
	ID           string `json:"id"`
	DispatchID   string `json:"dispatch_id"`
	UserID       string `json:"user_id"`
	Token        string `json:"token"`
	Status       string `json:"status"`
	StatusReason string `json:"status_reason"`
	DispatchedAt string `json:"dispatched_at"`
}

type Store interface {
	CreateDispatch(ctx context.Context, d *Dispatch) error
	FinishDispatch(ctx context.Context, dispatchID, status string, success, failure int) error
	GetDispatch(ctx context.Context, dispatchID string) (*Dispatch, error)
	BulkInsertReceipts(ctx context.Context, receipts []DeliveryReceipt) error
	ListFailedReceipts(ctx context.Context, dispatchID string) ([]DeliveryReceipt, error)
	Close() error
}
