package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/homeopathy-case-engine/internal/domain"
)

const remedyLookupConcurrency = 8

// RepertoryEngine builds the graded remedy pool for a rubric selection.
type RepertoryEngine struct {
	store  domain.ReferenceStore
	logger *logrus.Logger
}

// NewRepertoryEngine creates a repertory engine.
func NewRepertoryEngine(store domain.ReferenceStore, logger *logrus.Logger) *RepertoryEngine {
	return &RepertoryEngine{store: store, logger: logger}
}

// BuildRemedyPool accumulates every graded remedy of the given rubrics. Each
// pooled remedy's reference record is fetched once, concurrently.
func (e *RepertoryEngine) BuildRemedyPool(ctx context.Context, rubricIDs []string) (domain.RemedyPool, error) {
	pool := make(domain.RemedyPool)

	ids := dedupe(rubricIDs)
	if len(ids) == 0 {
		return pool, nil
	}

	mappings, err := e.store.RubricRemediesFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("rubric remedy lookup failed: %w", err)
	}

	for _, rr := range mappings {
		if !domain.ValidGrade(rr.Grade) {
			e.logger.WithFields(logrus.Fields{
				"rubric_id": rr.RubricID,
				"remedy_id": rr.RemedyID,
				"grade":     rr.Grade,
			}).Warn("Skipping rubric remedy with invalid grade")
			continue
		}
		entry, ok := pool[rr.RemedyID]
		if !ok {
			entry = &domain.PoolEntry{RemedyID: rr.RemedyID, RemedyName: rr.RemedyID}
			pool[rr.RemedyID] = entry
		}
		entry.RubricGrades = append(entry.RubricGrades, domain.RubricGrade{
			RubricID:  rr.RubricID,
			Grade:     rr.Grade,
			Repertory: rr.Repertory,
		})
		entry.TotalBaseScore += rr.Grade
	}

	entries := make([]*domain.PoolEntry, 0, len(pool))
	for _, entry := range pool {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RemedyID < entries[j].RemedyID })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remedyLookupConcurrency)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			remedy, err := e.store.RemedyByID(gctx, entry.RemedyID)
			if err != nil {
				return fmt.Errorf("remedy lookup failed for %s: %w", entry.RemedyID, err)
			}
			if remedy != nil {
				entry.Remedy = remedy
				entry.RemedyName = remedy.Name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"rubrics":  len(ids),
		"remedies": len(pool),
	}).Debug("Built remedy pool")

	return pool, nil
}

// GetRemedyDetails returns the remedy reference record, or nil when absent.
func (e *RepertoryEngine) GetRemedyDetails(ctx context.Context, remedyID string) (*domain.Remedy, error) {
	remedy, err := e.store.RemedyByID(ctx, remedyID)
	if err != nil {
		return nil, fmt.Errorf("remedy lookup failed: %w", err)
	}
	return remedy, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
