package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/repository/seed"
)

// PostgresReferenceStore reads reference data from PostgreSQL.
type PostgresReferenceStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresReferenceStore creates a new reference store over a pool
func NewPostgresReferenceStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresReferenceStore {
	return &PostgresReferenceStore{
		db:  db,
		log: logger,
	}
}

const symptomColumns = `code, name, category, synonyms, modality`

func scanSymptom(row pgx.Row) (*domain.Symptom, error) {
	var sym domain.Symptom
	var category string
	if err := row.Scan(&sym.Code, &sym.Name, &category, &sym.Synonyms, &sym.Modality); err != nil {
		return nil, err
	}
	sym.Category = domain.Category(category)
	return &sym, nil
}

func (r *PostgresReferenceStore) querySymptom(ctx context.Context, op, query string, args ...any) (*domain.Symptom, error) {
	sym, err := scanSymptom(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"operation": op,
			"error":     err,
		}).Error("Failed to query symptom")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sym, nil
}

// SymptomByCode retrieves a symptom by its canonical code
func (r *PostgresReferenceStore) SymptomByCode(ctx context.Context, code string) (*domain.Symptom, error) {
	query := `SELECT ` + symptomColumns + ` FROM symptoms WHERE code = $1`
	return r.querySymptom(ctx, "getting symptom by code", query, code)
}

// SymptomByName retrieves a symptom by case-insensitive display name
func (r *PostgresReferenceStore) SymptomByName(ctx context.Context, name string, category domain.Category, modality string) (*domain.Symptom, error) {
	query := `
		SELECT ` + symptomColumns + `
		FROM symptoms
		WHERE lower(name) = lower(btrim($1))
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR modality = '' OR lower(modality) = lower($3))
		ORDER BY code
		LIMIT 1`
	return r.querySymptom(ctx, "getting symptom by name", query, name, string(category), modality)
}

// SymptomBySynonym retrieves a symptom whose synonym list contains text
func (r *PostgresReferenceStore) SymptomBySynonym(ctx context.Context, text string, category domain.Category, modality string) (*domain.Symptom, error) {
	query := `
		SELECT ` + symptomColumns + `
		FROM symptoms
		WHERE EXISTS (SELECT 1 FROM unnest(synonyms) s WHERE lower(s) = lower(btrim($1)))
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR modality = '' OR lower(modality) = lower($3))
		ORDER BY code
		LIMIT 1`
	return r.querySymptom(ctx, "getting symptom by synonym", query, text, string(category), modality)
}

// SearchSymptoms finds symptoms whose name or synonyms overlap text
func (r *PostgresReferenceStore) SearchSymptoms(ctx context.Context, text string, category domain.Category, modality string, limit int) ([]domain.Symptom, error) {
	query := `
		SELECT ` + symptomColumns + `
		FROM symptoms
		WHERE (
			strpos(lower(name), lower(btrim($1))) > 0
			OR strpos(lower(btrim($1)), lower(name)) > 0
			OR EXISTS (
				SELECT 1 FROM unnest(synonyms) s
				WHERE s <> '' AND (strpos(lower(s), lower(btrim($1))) > 0 OR strpos(lower(btrim($1)), lower(s)) > 0)
			)
		)
		  AND btrim($1) <> ''
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR modality = '' OR lower(modality) = lower($3))
		ORDER BY code
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, text, string(category), modality, limit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"text":  text,
			"error": err,
		}).Error("Failed to search symptoms")
		return nil, fmt.Errorf("searching symptoms: %w", err)
	}
	defer rows.Close()

	symptoms := []domain.Symptom{}
	for rows.Next() {
		sym, err := scanSymptom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning symptom: %w", err)
		}
		symptoms = append(symptoms, *sym)
	}
	return symptoms, rows.Err()
}

const rubricColumns = `id, repertory, chapter, rubric_text, linked_symptoms, modality`

func scanRubric(row pgx.Row) (domain.Rubric, error) {
	var rb domain.Rubric
	err := row.Scan(&rb.ID, &rb.Repertory, &rb.Chapter, &rb.Text, &rb.LinkedSymptoms, &rb.Modality)
	return rb, err
}

// FindRubrics retrieves rubrics linked to the symptom code or containing a term
func (r *PostgresReferenceStore) FindRubrics(ctx context.Context, q domain.RubricQuery) ([]domain.Rubric, error) {
	query := `
		SELECT ` + rubricColumns + `
		FROM rubrics
		WHERE (
			($1 <> '' AND $1 = ANY(linked_symptoms))
			OR EXISTS (
				SELECT 1 FROM unnest($2::text[]) t
				WHERE btrim(t) <> '' AND strpos(lower(rubric_text), lower(btrim(t))) > 0
			)
		)
		  AND ($3 = '' OR lower(repertory) = lower($3))
		  AND ($4 = '' OR modality = '' OR lower(modality) = lower($4))
		ORDER BY id`

	terms := q.Terms
	if terms == nil {
		terms = []string{}
	}

	rows, err := r.db.Query(ctx, query, q.SymptomCode, terms, q.Repertory, q.Modality)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"symptom_code": q.SymptomCode,
			"error":        err,
		}).Error("Failed to find rubrics")
		return nil, fmt.Errorf("finding rubrics: %w", err)
	}
	defer rows.Close()

	rubrics := []domain.Rubric{}
	for rows.Next() {
		rb, err := scanRubric(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rubric: %w", err)
		}
		rubrics = append(rubrics, rb)
	}
	return rubrics, rows.Err()
}

// RubricRemediesFor retrieves the graded remedies of the given rubrics
func (r *PostgresReferenceStore) RubricRemediesFor(ctx context.Context, rubricIDs []string) ([]domain.RubricRemedy, error) {
	if len(rubricIDs) == 0 {
		return []domain.RubricRemedy{}, nil
	}

	query := `
		SELECT rubric_id, remedy_id, grade, repertory
		FROM rubric_remedies
		WHERE rubric_id = ANY($1)
		ORDER BY rubric_id, remedy_id`

	rows, err := r.db.Query(ctx, query, rubricIDs)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"rubric_count": len(rubricIDs),
			"error":        err,
		}).Error("Failed to get rubric remedies")
		return nil, fmt.Errorf("getting rubric remedies: %w", err)
	}
	defer rows.Close()

	mappings := []domain.RubricRemedy{}
	for rows.Next() {
		var rr domain.RubricRemedy
		if err := rows.Scan(&rr.RubricID, &rr.RemedyID, &rr.Grade, &rr.Repertory); err != nil {
			return nil, fmt.Errorf("scanning rubric remedy: %w", err)
		}
		mappings = append(mappings, rr)
	}
	return mappings, rows.Err()
}

const remedyColumns = `id, name, category, constitution, modalities_better, modalities_worse,
	clinical_indications, incompatible_with, materia_medica, potencies, modality`

func scanRemedy(row pgx.Row) (*domain.Remedy, error) {
	var rem domain.Remedy
	var constitution, materiaMedica []byte
	err := row.Scan(
		&rem.ID,
		&rem.Name,
		&rem.Category,
		&constitution,
		&rem.ModalitiesBetter,
		&rem.ModalitiesWorse,
		&rem.ClinicalIndication,
		&rem.IncompatibleWith,
		&materiaMedica,
		&rem.Potencies,
		&rem.Modality,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(constitution, &rem.Constitution); err != nil {
		return nil, fmt.Errorf("decoding constitution of %s: %w", rem.ID, err)
	}
	if err := json.Unmarshal(materiaMedica, &rem.MateriaMedica); err != nil {
		return nil, fmt.Errorf("decoding materia medica of %s: %w", rem.ID, err)
	}
	return &rem, nil
}

// RemedyByID retrieves a remedy by its identifier
func (r *PostgresReferenceStore) RemedyByID(ctx context.Context, id string) (*domain.Remedy, error) {
	query := `SELECT ` + remedyColumns + ` FROM remedies WHERE id = $1`

	rem, err := scanRemedy(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"remedy_id": id,
			"error":     err,
		}).Error("Failed to get remedy by ID")
		return nil, fmt.Errorf("getting remedy by ID: %w", err)
	}
	return rem, nil
}

// ListRemedies retrieves remedies ordered by name with the unpaginated total
func (r *PostgresReferenceStore) ListRemedies(ctx context.Context, f domain.RemedyFilter) ([]domain.Remedy, int, error) {
	query := `
		SELECT ` + remedyColumns + `, COUNT(*) OVER()
		FROM remedies
		WHERE ($1 = '' OR lower(category) = lower($1))
		  AND ($2 = '' OR strpos(lower(name), lower($2)) > 0 OR strpos(lower(id), lower($2)) > 0)
		ORDER BY name
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, f.Category, f.Search, limitOrAll(f.Limit), f.Offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list remedies")
		return nil, 0, fmt.Errorf("listing remedies: %w", err)
	}
	defer rows.Close()

	remedies := []domain.Remedy{}
	total := 0
	for rows.Next() {
		var rem domain.Remedy
		var constitution, materiaMedica []byte
		err := rows.Scan(
			&rem.ID, &rem.Name, &rem.Category, &constitution,
			&rem.ModalitiesBetter, &rem.ModalitiesWorse, &rem.ClinicalIndication,
			&rem.IncompatibleWith, &materiaMedica, &rem.Potencies, &rem.Modality,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning remedy: %w", err)
		}
		if err := json.Unmarshal(constitution, &rem.Constitution); err != nil {
			return nil, 0, fmt.Errorf("decoding constitution of %s: %w", rem.ID, err)
		}
		if err := json.Unmarshal(materiaMedica, &rem.MateriaMedica); err != nil {
			return nil, 0, fmt.Errorf("decoding materia medica of %s: %w", rem.ID, err)
		}
		remedies = append(remedies, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing remedies: %w", err)
	}

	if len(remedies) == 0 && f.Offset > 0 {
		if err := r.db.QueryRow(ctx, `
			SELECT COUNT(*) FROM remedies
			WHERE ($1 = '' OR lower(category) = lower($1))
			  AND ($2 = '' OR strpos(lower(name), lower($2)) > 0 OR strpos(lower(id), lower($2)) > 0)`,
			f.Category, f.Search).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("counting remedies: %w", err)
		}
	}
	return remedies, total, nil
}

// ListRubrics retrieves rubrics ordered by id with the unpaginated total
func (r *PostgresReferenceStore) ListRubrics(ctx context.Context, f domain.RubricFilter) ([]domain.Rubric, int, error) {
	where := `
		WHERE ($1 = '' OR lower(chapter) = lower($1))
		  AND ($2 = '' OR lower(repertory) = lower($2))
		  AND ($3 = '' OR strpos(lower(rubric_text), lower($3)) > 0)`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rubrics`+where, f.Chapter, f.Repertory, f.Search).Scan(&total); err != nil {
		r.log.WithError(err).Error("Failed to count rubrics")
		return nil, 0, fmt.Errorf("counting rubrics: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+rubricColumns+` FROM rubrics`+where+` ORDER BY id LIMIT $4 OFFSET $5`,
		f.Chapter, f.Repertory, f.Search, limitOrAll(f.Limit), f.Offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list rubrics")
		return nil, 0, fmt.Errorf("listing rubrics: %w", err)
	}
	defer rows.Close()

	rubrics := []domain.Rubric{}
	for rows.Next() {
		rb, err := scanRubric(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning rubric: %w", err)
		}
		rubrics = append(rubrics, rb)
	}
	return rubrics, total, rows.Err()
}

// Import upserts a whole dataset in one transaction.
func (r *PostgresReferenceStore) Import(ctx context.Context, ds *seed.Dataset) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, s := range ds.Symptoms {
		batch.Queue(`
			INSERT INTO symptoms (code, name, category, synonyms, modality)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name, category = EXCLUDED.category,
				synonyms = EXCLUDED.synonyms, modality = EXCLUDED.modality`,
			s.Code, s.Name, string(s.Category), nonNil(s.Synonyms), s.Modality)
	}
	for _, rb := range ds.Rubrics {
		batch.Queue(`
			INSERT INTO rubrics (id, repertory, chapter, rubric_text, linked_symptoms, modality)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				repertory = EXCLUDED.repertory, chapter = EXCLUDED.chapter,
				rubric_text = EXCLUDED.rubric_text, linked_symptoms = EXCLUDED.linked_symptoms,
				modality = EXCLUDED.modality`,
			rb.ID, rb.Repertory, rb.Chapter, rb.Text, nonNil(rb.LinkedSymptoms), rb.Modality)
	}
	for _, rem := range ds.Remedies {
		constitution, err := json.Marshal(nonNilTraits(rem.Constitution))
		if err != nil {
			return fmt.Errorf("encoding constitution of %s: %w", rem.ID, err)
		}
		materiaMedica, err := json.Marshal(rem.MateriaMedica)
		if err != nil {
			return fmt.Errorf("encoding materia medica of %s: %w", rem.ID, err)
		}
		batch.Queue(`
			INSERT INTO remedies (id, name, category, constitution, modalities_better, modalities_worse,
				clinical_indications, incompatible_with, materia_medica, potencies, modality)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, category = EXCLUDED.category,
				constitution = EXCLUDED.constitution, modalities_better = EXCLUDED.modalities_better,
				modalities_worse = EXCLUDED.modalities_worse, clinical_indications = EXCLUDED.clinical_indications,
				incompatible_with = EXCLUDED.incompatible_with, materia_medica = EXCLUDED.materia_medica,
				potencies = EXCLUDED.potencies, modality = EXCLUDED.modality`,
			rem.ID, rem.Name, rem.Category, string(constitution),
			nonNil(rem.ModalitiesBetter), nonNil(rem.ModalitiesWorse), nonNil(rem.ClinicalIndication),
			nonNil(rem.IncompatibleWith), string(materiaMedica), nonNil(rem.Potencies), rem.Modality)
	}
	for _, rr := range ds.RubricRemedies {
		batch.Queue(`
			INSERT INTO rubric_remedies (rubric_id, remedy_id, grade, repertory)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (rubric_id, remedy_id, repertory) DO UPDATE SET grade = EXCLUDED.grade`,
			rr.RubricID, rr.RemedyID, rr.Grade, rr.Repertory)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.log.WithError(err).Error("Failed to import reference dataset")
		return fmt.Errorf("importing reference dataset: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"symptoms":        len(ds.Symptoms),
		"rubrics":         len(ds.Rubrics),
		"rubric_remedies": len(ds.RubricRemedies),
		"remedies":        len(ds.Remedies),
	}).Info("Reference dataset imported")
	return nil
}

// limitOrAll maps a non-positive limit to NULL, which PostgreSQL reads as no limit.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilTraits(traits []domain.ConstitutionTrait) []domain.ConstitutionTrait {
	if traits == nil {
		return []domain.ConstitutionTrait{}
	}
	return traits
}
