package domain

import (
	"context"
	"time"
)

// RubricQuery selects rubrics linked to a symptom code or whose text contains
// any of the given terms (case-insensitive).
type RubricQuery struct {
	SymptomCode string
	Terms       []string
	Repertory   string
	Modality    string
}

// RemedyFilter restricts a paginated remedy listing.
type RemedyFilter struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}

// RubricFilter restricts a paginated rubric listing.
type RubricFilter struct {
	Chapter   string
	Search    string
	Repertory string
	Limit     int
	Offset    int
}

// ReferenceStore is the read-only persistence collaborator over the Symptom,
// Rubric, RubricRemedy and Remedy collections. Lookups of a single record
// return (nil, nil) when the record does not exist.
type ReferenceStore interface {
	SymptomByCode(ctx context.Context, code string) (*Symptom, error)
	SymptomByName(ctx context.Context, name string, category Category, modality string) (*Symptom, error)
	SymptomBySynonym(ctx context.Context, text string, category Category, modality string) (*Symptom, error)
	SearchSymptoms(ctx context.Context, text string, category Category, modality string, limit int) ([]Symptom, error)
	FindRubrics(ctx context.Context, q RubricQuery) ([]Rubric, error)
	RubricRemediesFor(ctx context.Context, rubricIDs []string) ([]RubricRemedy, error)
	RemedyByID(ctx context.Context, id string) (*Remedy, error)
	ListRemedies(ctx context.Context, f RemedyFilter) ([]Remedy, int, error)
	ListRubrics(ctx context.Context, f RubricFilter) ([]Rubric, int, error)
}

// CaseRecordStore persists engine runs and their clinical outcomes.
type CaseRecordStore interface {
	// Create stores a new case record and assigns its timestamps.
	Create(ctx context.Context, record *CaseRecord) error

	// Get returns the record with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*CaseRecord, error)

	// UpdateDecision sets the final remedy, or returns ErrNotFound.
	UpdateDecision(ctx context.Context, id string, decision FinalRemedy) error

	// UpdateOutcome sets the outcome status and notes, or returns ErrNotFound.
	UpdateOutcome(ctx context.Context, id string, status OutcomeStatus, notes string) error

	// ListByPatient returns the records doctorID holds for a patient, newest first.
	ListByPatient(ctx context.Context, patientID, doctorID string, limit, offset int) ([]*CaseRecord, int, error)

	// ListDecided returns non-pending records whose final remedy is remedyID,
	// created at or after since (zero since means no lower bound).
	ListDecided(ctx context.Context, remedyID string, since time.Time) ([]*CaseRecord, error)

	// ListImprovedWithMentalSymptom returns improved records whose normalized
	// mental symptoms include code.
	ListImprovedWithMentalSymptom(ctx context.Context, code string) ([]*CaseRecord, error)

	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetEngineConfig() EngineConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
