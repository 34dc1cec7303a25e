package outcome

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/homeopathy-case-engine/internal/domain"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite case record store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// WithClock replaces the clock used to stamp records.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = now
	return s
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS case_records (
		id TEXT PRIMARY KEY,
		doctor_id TEXT NOT NULL DEFAULT '',
		patient_id TEXT NOT NULL,
		normalized_case TEXT NOT NULL,
		selected_rubrics TEXT NOT NULL DEFAULT '[]',
		engine_output TEXT NOT NULL,
		final_remedy TEXT,
		final_remedy_id TEXT NOT NULL DEFAULT '',
		outcome_status TEXT NOT NULL DEFAULT 'pending',
		follow_up_notes TEXT NOT NULL DEFAULT '',
		mental_symptom_codes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_case_records_patient ON case_records(patient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_case_records_remedy ON case_records(final_remedy_id, outcome_status);
	`

	_, err := db.Exec(schema)
	return err
}

// Create stores a new case record.
func (s *SQLiteStore) Create(ctx context.Context, record *domain.CaseRecord) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.DoctorID,
		record.PatientID,
		string(enc.normalizedCase),
		string(enc.selectedRubrics),
		string(enc.engineOutput),
		nullableText(final),
		finalID,
		string(record.OutcomeStatus),
		record.FollowUpNotes,
		enc.mentalCodes,
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get returns the record with id, or domain.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM case_records WHERE id = ?`, id)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return r, nil
}

// UpdateDecision sets the final remedy.
func (s *SQLiteStore) UpdateDecision(ctx context.Context, id string, decision domain.FinalRemedy) error {
	final, finalID, err := finalRemedyColumns(&decision)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE case_records SET
			final_remedy = ?,
			final_remedy_id = ?,
			updated_at = ?
		WHERE id = ?
	`, string(final), finalID, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update decision: %w", err)
	}
	return checkAffected(result, id)
}

// UpdateOutcome sets the outcome status and follow-up notes.
func (s *SQLiteStore) UpdateOutcome(ctx context.Context, id string, status domain.OutcomeStatus, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE case_records SET
			outcome_status = ?,
			follow_up_notes = ?,
			updated_at = ?
		WHERE id = ?
	`, string(status), notes, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	return checkAffected(result, id)
}

// ListByPatient returns the records doctorID holds for a patient, newest first.
func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID, doctorID string, limit, offset int) ([]*domain.CaseRecord, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM case_records WHERE patient_id = ? AND doctor_id = ?", patientID, doctorID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count: %w", err)
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		WHERE patient_id = ? AND doctor_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, patientID, doctorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	records, err := collect(rows)
	return records, total, err
}

// ListDecided returns non-pending records prescribed remedyID since the given time.
func (s *SQLiteStore) ListDecided(ctx context.Context, remedyID string, since time.Time) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		WHERE final_remedy_id = ? AND outcome_status <> ?
		ORDER BY created_at DESC, id
	`, remedyID, string(domain.OutcomePending))
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	records, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return records, nil
	}
	filtered := records[:0]
	for _, r := range records {
		if !r.CreatedAt.Before(since) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListImprovedWithMentalSymptom returns improved records presenting code.
func (s *SQLiteStore) ListImprovedWithMentalSymptom(ctx context.Context, code string) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		WHERE outcome_status = ? AND mental_symptom_codes LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id
	`, string(domain.OutcomeImproved), mentalCodePattern(code))
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func (s *SQLiteStore) listAll(ctx context.Context) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+`
		FROM case_records
		ORDER BY created_at DESC, id
		LIMIT ?
	`, maxExportLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// ExportJSON exports every case record to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.listAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list case records: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports case records from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func collect(rows *sql.Rows) ([]*domain.CaseRecord, error) {
	var result []*domain.CaseRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func checkAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func nullableText(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

var _ Store = (*SQLiteStore)(nil)
