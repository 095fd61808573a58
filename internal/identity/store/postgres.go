package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mtoken/internal/identity/models"
	"mtoken/pkg/platform/sentinel"
)

// DefaultTable is the relation identities are stored in unless configured
// otherwise.
const DefaultTable = "personal_data"

// Postgres error codes tolerated while provisioning. Concurrent
// CREATE TABLE IF NOT EXISTS can still collide on the catalog.
const (
	pgDuplicateTable  = "42P07"
	pgUniqueViolation = "23505"
)

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db          *sql.DB
	table       string
	provisioned atomic.Bool

	schemaSQL string
	findSQL   string
	upsertSQL string
}

// NewPostgres constructs a PostgresStore over db. An empty table name
// selects DefaultTable.
func NewPostgres(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	quoted := pq.QuoteIdentifier(table)
	schemaSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id VARCHAR(255) PRIMARY KEY,
			citizen_id VARCHAR(255) UNIQUE,
			first_name VARCHAR(255),
			last_name VARCHAR(255),
			date_of_birth VARCHAR(255),
			mobile VARCHAR(255),
			email VARCHAR(255),
			notification VARCHAR(50),
			additional_info TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, quoted)
	findSQL := fmt.Sprintf(`
		SELECT user_id, citizen_id, first_name, last_name, date_of_birth,
			mobile, email, notification, additional_info, created_at
		FROM %s
		WHERE citizen_id = $1`, quoted)
	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s
			(user_id, citizen_id, first_name, last_name, date_of_birth, email, notification, mobile, additional_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (citizen_id) DO UPDATE SET
			mobile = EXCLUDED.mobile,
			additional_info = EXCLUDED.additional_info`, quoted)

	return &PostgresStore{
		db:        db,
		table:     table,
		schemaSQL: schemaSQL,
		findSQL:   findSQL,
		upsertSQL: upsertSQL,
	}
}

// Table returns the unquoted relation name.
func (s *PostgresStore) Table() string {
	return s.table
}

// EnsureSchema creates the identity relation when it is missing. Safe to call
// on every start and from several processes at once.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schemaSQL); err != nil && !isAlreadyProvisioned(err) {
		return fmt.Errorf("%w: provision %s: %w", classify(err), s.table, err)
	}
	s.provisioned.Store(true)
	return nil
}

func isAlreadyProvisioned(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgDuplicateTable || pgErr.Code == pgUniqueViolation
}

func (s *PostgresStore) ensure(ctx context.Context) error {
	if s.provisioned.Load() {
		return nil
	}
	return s.EnsureSchema(ctx)
}

// FindByCitizenID returns the record for citizenID or sentinel.ErrNotFound.
func (s *PostgresStore) FindByCitizenID(ctx context.Context, citizenID string) (*models.IdentityRecord, error) {
	ctx, span := otel.Tracer("mtoken/identity/store").Start(ctx, "store.find_by_citizen_id")
	defer span.End()

	record, err := s.find(ctx, citizenID)
	span.SetAttributes(attribute.Bool("store.found", err == nil))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
	}
	return record, err
}

func (s *PostgresStore) find(ctx context.Context, citizenID string) (*models.IdentityRecord, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	var record models.IdentityRecord
	var firstName, lastName, dob, mobile, email, notify, extra sql.NullString
	var createdAt sql.NullTime
	err := s.db.QueryRowContext(ctx, s.findSQL, citizenID).Scan(
		&record.SubjectID,
		&record.CitizenID,
		&firstName,
		&lastName,
		&dob,
		&mobile,
		&email,
		&notify,
		&extra,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find identity: %w", classify(err), err)
	}

	record.FirstName = firstName.String
	record.LastName = lastName.String
	record.DateOfBirth = dob.String
	record.Mobile = mobile.String
	record.Email = email.String
	record.Notification = notify.String
	record.AdditionalInfo = extra.String
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time.UTC()
	}
	return &record, nil
}

// Upsert inserts record, or on a citizen id conflict overwrites only mobile
// and additional info. It is a single statement so concurrent writers for the
// same citizen id never produce two rows.
func (s *PostgresStore) Upsert(ctx context.Context, record *models.IdentityRecord) error {
	if record == nil {
		return fmt.Errorf("identity record is required")
	}
	ctx, span := otel.Tracer("mtoken/identity/store").Start(ctx, "store.upsert")
	defer span.End()

	if err := s.upsert(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return err
	}
	return nil
}

func (s *PostgresStore) upsert(ctx context.Context, record *models.IdentityRecord) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.upsertSQL,
		record.SubjectID,
		record.CitizenID,
		nullable(record.FirstName),
		nullable(record.LastName),
		nullable(record.DateOfBirth),
		nullable(record.Email),
		nullable(record.Notification),
		nullable(record.Mobile),
		nullable(record.AdditionalInfo),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert identity: %w", classify(err), err)
	}
	return nil
}

// nullable maps the empty marker to SQL NULL.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sentinel.ErrTimeout
	}
	return sentinel.ErrUnavailable
}
