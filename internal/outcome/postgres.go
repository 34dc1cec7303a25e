package outcome

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/homeopathy-case-engine/internal/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a new PostgreSQL case record store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL case record store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// WithClock replaces the clock used to stamp records.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

// Create stores a new case record.
func (s *PostgresStore) Create(ctx context.Context, record *domain.CaseRecord) error {
	if err := validateNew(record); err != nil {
		return err
	}
	stampNew(record, s.now().UTC())

	enc, err := encodeRecord(record)
	if err != nil {
		return err
	}
	final, finalID, err := finalRemedyColumns(record.FinalRemedy)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO case_records (
			id, doctor_id, patient_id, normalized_case, selected_rubrics,
			engine_output, final_remedy, final_remedy_id, outcome_status,
			follow_up_notes, mental_symptom_codes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		record.ID,
		record.DoctorID,
		record.PatientID,
		enc.normalizedCase,
		enc.selectedRubrics,
		enc.engineOutput,
		nullableBytes(final),
		finalID,
		string(record.OutcomeStatus),
		record.FollowUpNotes,
		enc.mentalCodes,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save case record: %w", err)
	}
	return nil
}

// Get returns the record with id, or domain.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM case_records WHERE id = $1`, id)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case record: %w", err)
	}
	return r, nil
}

// UpdateDecision sets the final remedy.
func (s *PostgresStore) UpdateDecision(ctx context.Context, id string, decision domain.FinalRemedy) error {
	final, finalID, err := finalRemedyColumns(&decision)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE case_records
		SET final_remedy = $1, final_remedy_id = $2, updated_at = $3
		WHERE id = $4
	`, final, finalID, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update decision: %w", err)
	}
	return checkAffected(result, id)
}

// UpdateOutcome sets the outcome status and follow-up notes.
func (s *PostgresStore) UpdateOutcome(ctx context.Context, id string, status domain.OutcomeStatus, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE case_records
		SET outcome_status = $1, follow_up_notes = $2, updated_at = $3
		WHERE id = $4
	`, string(status), notes, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	return checkAffected(result, id)
}

// ListByPatient returns the records doctorID holds for a patient, newest first.
func (s *PostgresStore) ListByPatient(ctx context.Context, patientID, doctorID string, limit, offset int) ([]*domain.CaseRecord, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM case_records WHERE patient_id = $1 AND doctor_id = $2", patientID, doctorID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count case records: %w", err)
	}

	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		WHERE patient_id = $1 AND doctor_id = $2
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, patientID, doctorID, lim, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list case records: %w", err)
	}
	defer rows.Close()

	records, err := collect(rows)
	return records, total, err
}

// ListDecided returns non-pending records prescribed remedyID since the given time.
func (s *PostgresStore) ListDecided(ctx context.Context, remedyID string, since time.Time) ([]*domain.CaseRecord, error) {
	var lower interface{}
	if !since.IsZero() {
		lower = since
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		WHERE final_remedy_id = $1
		  AND outcome_status <> 'pending'
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at DESC, id
	`, remedyID, lower)
	if err != nil {
		return nil, fmt.Errorf("failed to list decided case records: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// ListImprovedWithMentalSymptom returns improved records presenting code.
func (s *PostgresStore) ListImprovedWithMentalSymptom(ctx context.Context, code string) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		WHERE outcome_status = 'improved' AND mental_symptom_codes LIKE $1 ESCAPE '\'
		ORDER BY created_at DESC, id
	`, mentalCodePattern(code))
	if err != nil {
		return nil, fmt.Errorf("failed to list improved case records: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// ExportJSON exports every case record to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		ORDER BY created_at DESC, id
		LIMIT $1
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list case records: %w", err)
	}
	defer rows.Close()

	all, err := collect(rows)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// ImportJSON imports case records from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

var _ Store = (*PostgresStore)(nil)
