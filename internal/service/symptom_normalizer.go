package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// UnmatchedPrefix marks the code of a symptom the reference data could not
// resolve. Canonical codes always start with "SYM_".
const UnmatchedPrefix = "UNMATCHED:"

var canonicalCodePattern = regexp.MustCompile(`^SYM_[A-Z0-9_]+$`)

// IsCanonicalCode reports whether code has the stored symptom code shape.
func IsCanonicalCode(code string) bool {
	return canonicalCodePattern.MatchString(code)
}

// SymptomNormalizer resolves free-text symptom mentions to canonical symptoms.
// Matched answers are memoized in an LRU keyed by category and lowercased text.
type SymptomNormalizer struct {
	store          domain.ReferenceStore
	modality       string
	candidateLimit int
	memo           *lru.Cache
	memoTTL        time.Duration
	now            func() time.Time
	logger         *logrus.Logger
}

type memoEntry struct {
	match   domain.SymptomMatch
	expires time.Time
}

// NewSymptomNormalizer creates a normalizer over the reference store. A memoSize
// of zero disables memoization.
func NewSymptomNormalizer(store domain.ReferenceStore, cfg domain.EngineConfig, memoSize int, logger *logrus.Logger) (*SymptomNormalizer, error) {
	n := &SymptomNormalizer{
		store:          store,
		modality:       cfg.Modality,
		candidateLimit: cfg.FuzzyCandidateLimit,
		now:            time.Now,
		logger:         logger,
	}
	if n.candidateLimit <= 0 {
		n.candidateLimit = 5
	}
	if memoSize > 0 {
		memo, err := lru.New(memoSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create normalizer memo: %w", err)
		}
		n.memo = memo
	}
	return n, nil
}

// SetMemoTTL bounds how long a memoized match is served. Zero keeps entries
// until they are evicted or purged.
func (n *SymptomNormalizer) SetMemoTTL(ttl time.Duration) {
	n.memoTTL = ttl
}

// Purge drops every memoized match. Reference caches call it on invalidation.
func (n *SymptomNormalizer) Purge() {
	if n.memo != nil {
		n.memo.Purge()
	}
}

// Normalize resolves one mention. An empty category searches all categories.
// Absence is never an error: unresolved text comes back unmatched with low
// confidence. Only reference store failures are returned as errors.
func (n *SymptomNormalizer) Normalize(ctx context.Context, text string, category domain.Category) (domain.SymptomMatch, error) {
	trimmed := strings.TrimSpace(text)
	key := string(category) + "|" + strings.ToLower(trimmed)

	if n.memo != nil {
		if cached, ok := n.memo.Get(key); ok {
			entry := cached.(memoEntry)
			if entry.expires.IsZero() || n.now().Before(entry.expires) {
				return entry.match, nil
			}
			n.memo.Remove(key)
		}
	}

	match, err := n.resolve(ctx, trimmed, category)
	if err != nil {
		return domain.SymptomMatch{}, err
	}
	if !match.Matched {
		match.Name = text
		n.logger.WithFields(logrus.Fields{
			"text":     text,
			"category": category,
		}).Debug("Symptom text did not match reference data")
		return match, nil
	}

	if n.memo != nil {
		entry := memoEntry{match: match}
		if n.memoTTL > 0 {
			entry.expires = n.now().Add(n.memoTTL)
		}
		n.memo.Add(key, entry)
	}
	return match, nil
}

// NormalizeAll normalizes every text in order. Empty input yields an empty slice.
func (n *SymptomNormalizer) NormalizeAll(ctx context.Context, texts []string, category domain.Category) ([]domain.SymptomMatch, error) {
	matches := make([]domain.SymptomMatch, 0, len(texts))
	for _, text := range texts {
		m, err := n.Normalize(ctx, text, category)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (n *SymptomNormalizer) resolve(ctx context.Context, text string, category domain.Category) (domain.SymptomMatch, error) {
	if text == "" {
		return unmatched(text), nil
	}

	if code := strings.ToUpper(text); IsCanonicalCode(code) {
		sym, err := n.store.SymptomByCode(ctx, code)
		if err != nil {
			return domain.SymptomMatch{}, fmt.Errorf("symptom lookup by code failed: %w", err)
		}
		if sym != nil {
			return matched(sym, domain.MatchExact), nil
		}
	}

	sym, err := n.store.SymptomByName(ctx, text, category, n.modality)
	if err != nil {
		return domain.SymptomMatch{}, fmt.Errorf("symptom lookup by name failed: %w", err)
	}
	if sym != nil {
		return matched(sym, domain.MatchExact), nil
	}

	sym, err = n.store.SymptomBySynonym(ctx, text, category, n.modality)
	if err != nil {
		return domain.SymptomMatch{}, fmt.Errorf("symptom lookup by synonym failed: %w", err)
	}
	if sym != nil {
		return matched(sym, domain.MatchHigh), nil
	}

	candidates, err := n.store.SearchSymptoms(ctx, text, category, n.modality, n.candidateLimit)
	if err != nil {
		return domain.SymptomMatch{}, fmt.Errorf("symptom search failed: %w", err)
	}
	if len(candidates) > 0 {
		best := &candidates[0]
		for i := range candidates {
			if containsFold(candidates[i].Name, text) {
				best = &candidates[i]
				break
			}
		}
		return matched(best, domain.MatchMedium), nil
	}

	return unmatched(text), nil
}

func matched(sym *domain.Symptom, confidence domain.MatchConfidence) domain.SymptomMatch {
	return domain.SymptomMatch{
		Code:       sym.Code,
		Name:       sym.Name,
		Confidence: confidence,
		Matched:    true,
	}
}

func unmatched(text string) domain.SymptomMatch {
	return domain.SymptomMatch{
		Code:       UnmatchedPrefix + strings.ToLower(strings.TrimSpace(text)),
		Name:       text,
		Confidence: domain.MatchLow,
		Matched:    false,
	}
}
