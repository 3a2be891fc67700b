package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrDuplicateDelivery indicates a delivery record already exists for
// the (policy, milestone) pair. The unique constraint in the database
// is the correctness mechanism; this error is how the dispatcher learns
// it lost the race.
var ErrDuplicateDelivery = errors.New("delivery record already exists for policy and milestone")

const pgUniqueViolation = "23505"

// Ledger is the durable, append-only record of every reminder attempt.
// Rows are never updated or deleted once written.
type Ledger struct {
	db     *DB
	logger *zap.Logger
}

// NewLedger creates a new delivery ledger backed by postgres
func NewLedger(db *DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
	}
}

// Exists reports whether any record exists for the (policy, milestone)
// pair, regardless of its status. A FAILED attempt still counts as
// attempted and suppresses further sends.
func (l *Ledger) Exists(ctx context.Context, policyID uuid.UUID, milestone string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM delivery_records
			WHERE policy_id = $1 AND milestone = $2
		)
	`

	var exists bool
	err := l.db.Pool().QueryRow(ctx, query, policyID, milestone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check delivery exists: %w", err)
	}

	return exists, nil
}

// Record inserts one delivery record. Returns ErrDuplicateDelivery
// (wrapped) when a record for the same pair already exists; the row is
// never overwritten.
func (l *Ledger) Record(ctx context.Context, rec *DeliveryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO delivery_records (
			id, policy_id, milestone, recipient_phone, message_body,
			status, external_message_id, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at
	`

	err := l.db.Pool().QueryRow(
		ctx,
		query,
		rec.ID,
		rec.PolicyID,
		rec.Milestone,
		rec.RecipientPhone,
		rec.MessageBody,
		rec.Status,
		rec.ExternalMessageID,
		rec.ErrorMessage,
	).Scan(&rec.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("policy %s milestone %s: %w", rec.PolicyID, rec.Milestone, ErrDuplicateDelivery)
		}
		l.logger.Error("failed to record delivery",
			zap.Error(err),
			zap.String("policy_id", rec.PolicyID.String()),
			zap.String("milestone", rec.Milestone),
		)
		return fmt.Errorf("insert delivery record: %w", err)
	}

	l.logger.Info("delivery recorded",
		zap.String("delivery_id", rec.ID.String()),
		zap.String("policy_id", rec.PolicyID.String()),
		zap.String("milestone", rec.Milestone),
		zap.String("status", rec.Status),
	)

	return nil
}

const deliveryColumns = `
	id, policy_id, milestone, recipient_phone, message_body,
	status, external_message_id, error_message, created_at
`

// ListByPolicy returns all delivery records for one policy, newest first
func (l *Ledger) ListByPolicy(ctx context.Context, policyID uuid.UUID) ([]*DeliveryRecord, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM delivery_records
		WHERE policy_id = $1
		ORDER BY created_at DESC
	`

	rows, err := l.db.Pool().Query(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries by policy: %w", err)
	}
	defer rows.Close()

	return scanDeliveryRecords(rows)
}

// ListRecent returns delivery records with pagination, optionally
// filtered by status. An empty status returns all records.
func (l *Ledger) ListRecent(ctx context.Context, status string, limit, offset int) ([]*DeliveryRecord, error) {
	var query string
	var args []any

	if status != "" {
		query = `
			SELECT ` + deliveryColumns + `
			FROM delivery_records
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		args = []any{status, limit, offset}
	} else {
		query = `
			SELECT ` + deliveryColumns + `
			FROM delivery_records
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
		args = []any{limit, offset}
	}

	rows, err := l.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveryRecords(rows)
}

func scanDeliveryRecords(rows pgxRows) ([]*DeliveryRecord, error) {
	var records []*DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		err := rows.Scan(
			&rec.ID,
			&rec.PolicyID,
			&rec.Milestone,
			&rec.RecipientPhone,
			&rec.MessageBody,
			&rec.Status,
			&rec.ExternalMessageID,
			&rec.ErrorMessage,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}
