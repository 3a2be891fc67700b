package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrPolicyNotFound indicates no policy exists with the given id.
var ErrPolicyNotFound = errors.New("policy not found")

// PolicyStore is the read-only adapter over the policy tables. The
// reminder pipeline only ever reads policies; writes belong to the
// back-office CRUD service that owns these tables.
type PolicyStore struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyStore creates a new read-only policy store
func NewPolicyStore(db *DB, logger *zap.Logger) *PolicyStore {
	return &PolicyStore{
		db:     db,
		logger: logger,
	}
}

const policySnapshotColumns = `
	p.id, p.policy_number, p.policy_type, p.expiry_date,
	p.premium, p.premium_frequency, c.full_name, c.phone_number, p.status
`

// FindActiveExpiringOn returns all ACTIVE policies whose expiry date
// equals the given date. Returns an empty slice (not an error) when
// nothing matches.
func (s *PolicyStore) FindActiveExpiringOn(ctx context.Context, date time.Time) ([]PolicySnapshot, error) {
	query := `
		SELECT ` + policySnapshotColumns + `
		FROM policies p
		JOIN clients c ON c.id = p.client_id
		WHERE p.expiry_date = $1 AND p.status = $2
	`

	rows, err := s.db.Pool().Query(ctx, query, date, PolicyStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query expiring policies: %w", err)
	}
	defer rows.Close()

	return scanPolicySnapshots(rows)
}

// FindActiveExpiringBetween returns ACTIVE policies expiring in the
// inclusive date range. Used by the lookahead endpoint for agents.
func (s *PolicyStore) FindActiveExpiringBetween(ctx context.Context, start, end time.Time) ([]PolicySnapshot, error) {
	query := `
		SELECT ` + policySnapshotColumns + `
		FROM policies p
		JOIN clients c ON c.id = p.client_id
		WHERE p.expiry_date BETWEEN $1 AND $2 AND p.status = $3
		ORDER BY p.expiry_date ASC
	`

	rows, err := s.db.Pool().Query(ctx, query, start, end, PolicyStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query policies in range: %w", err)
	}
	defer rows.Close()

	return scanPolicySnapshots(rows)
}

// GetPolicy retrieves a single policy snapshot by ID
func (s *PolicyStore) GetPolicy(ctx context.Context, id uuid.UUID) (*PolicySnapshot, error) {
	query := `
		SELECT ` + policySnapshotColumns + `
		FROM policies p
		JOIN clients c ON c.id = p.client_id
		WHERE p.id = $1
	`

	var p PolicySnapshot
	err := s.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.PolicyNumber,
		&p.PolicyType,
		&p.ExpiryDate,
		&p.Premium,
		&p.PremiumFrequency,
		&p.ClientName,
		&p.ClientPhone,
		&p.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("policy %s: %w", id, ErrPolicyNotFound)
		}
		return nil, fmt.Errorf("query policy %s: %w", id, err)
	}

	return &p, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPolicySnapshots(rows pgxRows) ([]PolicySnapshot, error) {
	policies := []PolicySnapshot{}
	for rows.Next() {
		var p PolicySnapshot
		err := rows.Scan(
			&p.ID,
			&p.PolicyNumber,
			&p.PolicyType,
			&p.ExpiryDate,
			&p.Premium,
			&p.PremiumFrequency,
			&p.ClientName,
			&p.ClientPhone,
			&p.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return policies, nil
}
