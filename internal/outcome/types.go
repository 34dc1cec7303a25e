// Package outcome persists case records: the auditable trace of each engine
// run together with the doctor's decision and the follow-up outcome.
package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/homeopathy-case-engine/internal/domain"
)

// Store is a case record store that can also move its records in and out as JSON.
type Store interface {
	domain.CaseRecordStore

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads records from reader. Records whose id already exists
	// are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error
}

// CaseRecordExport represents the JSON export format.
type CaseRecordExport struct {
	Version     string               `json:"version"`
	ExportedAt  time.Time            `json:"exported_at"`
	Count       int                  `json:"count"`
	CaseRecords []*domain.CaseRecord `json:"case_records"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of records exported at once.
const maxExportLimit = 1000000

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const recordColumns = `id, doctor_id, patient_id, normalized_case, selected_rubrics,
	engine_output, final_remedy, outcome_status, follow_up_notes, created_at, updated_at`

// encodedRecord holds the serialized columns of a case record.
type encodedRecord struct {
	normalizedCase  []byte
	selectedRubrics []byte
	engineOutput    []byte
	mentalCodes     string
}

func encodeRecord(r *domain.CaseRecord) (*encodedRecord, error) {
	normalized, err := json.Marshal(r.NormalizedCase)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalized case: %w", err)
	}
	selected := r.SelectedRubrics
	if selected == nil {
		selected = []domain.RubricCandidate{}
	}
	rubrics, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected rubrics: %w", err)
	}
	output, err := json.Marshal(r.EngineOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal engine output: %w", err)
	}
	return &encodedRecord{
		normalizedCase:  normalized,
		selectedRubrics: rubrics,
		engineOutput:    output,
		mentalCodes:     mentalCodes(r.NormalizedCase),
	}, nil
}

// finalRemedyColumns returns the JSON document and the denormalized remedy id
// of a decision. A nil decision maps to NULL and "".
func finalRemedyColumns(fr *domain.FinalRemedy) ([]byte, string, error) {
	if fr == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(fr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal final remedy: %w", err)
	}
	return data, fr.RemedyID, nil
}

// scanRecord scans a row selected with recordColumns.
func scanRecord(s scanner) (*domain.CaseRecord, error) {
	r := &domain.CaseRecord{}
	var normalized, selected, output, final []byte
	var status string

	err := s.Scan(
		&r.ID, &r.DoctorID, &r.PatientID, &normalized, &selected,
		&output, &final, &status, &r.FollowUpNotes, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.OutcomeStatus = domain.OutcomeStatus(status)
	if err := json.Unmarshal(normalized, &r.NormalizedCase); err != nil {
		return nil, fmt.Errorf("failed to decode normalized case: %w", err)
	}
	if len(selected) > 0 {
		if err := json.Unmarshal(selected, &r.SelectedRubrics); err != nil {
			return nil, fmt.Errorf("failed to decode selected rubrics: %w", err)
		}
	}
	if err := json.Unmarshal(output, &r.EngineOutput); err != nil {
		return nil, fmt.Errorf("failed to decode engine output: %w", err)
	}
	if len(final) > 0 {
		r.FinalRemedy = &domain.FinalRemedy{}
		if err := json.Unmarshal(final, r.FinalRemedy); err != nil {
			return nil, fmt.Errorf("failed to decode final remedy: %w", err)
		}
	}
	return r, nil
}

// mentalCodes flattens the mental symptom codes of a case into "|c1|c2|" so a
// single LIKE '%|code|%' finds every case presenting code.
func mentalCodes(p domain.NormalizedCaseProfile) string {
	if len(p.Mental) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('|')
	for _, s := range p.Mental {
		b.WriteString(s.Code)
		b.WriteByte('|')
	}
	return b.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// mentalCodePattern matches code literally; canonical codes contain '_',
// which LIKE would otherwise treat as a wildcard. Queries pair it with ESCAPE '\'.
func mentalCodePattern(code string) string {
	return "%|" + likeEscaper.Replace(code) + "|%"
}

func validateNew(r *domain.CaseRecord) error {
	if r == nil {
		return fmt.Errorf("case record is required")
	}
	if strings.TrimSpace(r.ID) == "" {
		return domain.NewValidationError("id", "case record id is required", nil)
	}
	if strings.TrimSpace(r.PatientID) == "" {
		return domain.NewValidationError("patientId", "patientId is required", nil)
	}
	if r.OutcomeStatus == "" {
		r.OutcomeStatus = domain.OutcomePending
	}
	if !r.OutcomeStatus.IsValid() {
		return domain.NewValidationError("outcomeStatus", domain.ErrInvalidOutcomeStatus.Error(), r.OutcomeStatus)
	}
	return nil
}

func stampNew(r *domain.CaseRecord, now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func notFound(id string) error {
	return fmt.Errorf("case record %s: %w", id, domain.ErrNotFound)
}

func writeExport(writer io.Writer, records []*domain.CaseRecord) error {
	export := &CaseRecordExport{
		Version:     exportVersion,
		ExportedAt:  time.Now().UTC(),
		Count:       len(records),
		CaseRecords: records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importRecords creates every record in the export whose id is not yet stored.
func importRecords(ctx context.Context, store domain.CaseRecordStore, reader io.Reader) (imported int, skipped int, err error) {
	var export CaseRecordExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, r := range export.CaseRecords {
		_, err := store.Get(ctx, r.ID)
		if err == nil {
			skipped++
			continue
		}
		if !isNotFound(err) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := store.Create(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}
