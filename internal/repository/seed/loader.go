// Package seed holds the bundled reference dataset: symptoms, rubrics, graded
// rubric remedies and remedies.
package seed

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/homeopathy-case-engine/internal/domain"
)

//go:embed *.yaml
var seedFS embed.FS

// Dataset is a complete reference collection.
type Dataset struct {
	Symptoms       []domain.Symptom      `yaml:"symptoms"`
	Rubrics        []domain.Rubric       `yaml:"rubrics"`
	RubricRemedies []domain.RubricRemedy `yaml:"rubric_remedies"`
	Remedies       []domain.Remedy       `yaml:"remedies"`
}

var files = []string{"symptoms.yaml", "rubrics.yaml", "remedies.yaml", "rubric_remedies.yaml"}

// Load reads and validates the embedded dataset.
func Load() (*Dataset, error) {
	return load(seedFS)
}

// LoadDir reads and validates a dataset laid out like the embedded one.
func LoadDir(dir string) (*Dataset, error) {
	return load(os.DirFS(filepath.Clean(dir)))
}

func load(fsys fs.FS) (*Dataset, error) {
	ds := &Dataset{}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read seed file %q: %w", name, err)
		}
		var part Dataset
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("parse seed file %q: %w", name, err)
		}
		ds.Symptoms = append(ds.Symptoms, part.Symptoms...)
		ds.Rubrics = append(ds.Rubrics, part.Rubrics...)
		ds.RubricRemedies = append(ds.RubricRemedies, part.RubricRemedies...)
		ds.Remedies = append(ds.Remedies, part.Remedies...)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks identifiers are unique and every reference resolves.
func (d *Dataset) Validate() error {
	symptoms := make(map[string]bool, len(d.Symptoms))
	for _, s := range d.Symptoms {
		if s.Code == "" || symptoms[s.Code] {
			return fmt.Errorf("symptom code %q is empty or duplicated", s.Code)
		}
		if !s.Category.IsValid() {
			return fmt.Errorf("symptom %s: %w: %q", s.Code, domain.ErrInvalidCategory, s.Category)
		}
		symptoms[s.Code] = true
	}

	rubrics := make(map[string]bool, len(d.Rubrics))
	for _, r := range d.Rubrics {
		if r.ID == "" || rubrics[r.ID] {
			return fmt.Errorf("rubric id %q is empty or duplicated", r.ID)
		}
		for _, code := range r.LinkedSymptoms {
			if !symptoms[code] {
				return fmt.Errorf("rubric %s links unknown symptom %s", r.ID, code)
			}
		}
		rubrics[r.ID] = true
	}

	remedies := make(map[string]bool, len(d.Remedies))
	for _, r := range d.Remedies {
		if r.ID == "" || remedies[r.ID] {
			return fmt.Errorf("remedy id %q is empty or duplicated", r.ID)
		}
		remedies[r.ID] = true
	}

	for _, rr := range d.RubricRemedies {
		if !rubrics[rr.RubricID] {
			return fmt.Errorf("rubric remedy references unknown rubric %s", rr.RubricID)
		}
		if !remedies[rr.RemedyID] {
			return fmt.Errorf("rubric remedy references unknown remedy %s", rr.RemedyID)
		}
		if !domain.ValidGrade(rr.Grade) {
			return fmt.Errorf("rubric %s remedy %s: %w: %d", rr.RubricID, rr.RemedyID, domain.ErrInvalidGrade, rr.Grade)
		}
	}
	return nil
}
