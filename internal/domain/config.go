package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	OutcomeStore OutcomeStoreConfig `mapstructure:"outcome_store"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Engine       EngineConfig       `mapstructure:"engine"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig represents the reference-data Postgres connection
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents remedy cache configuration. An empty RedisURL disables
// the Redis tier.
type CacheConfig struct {
	MemoryMaxItems int           `mapstructure:"memory_max_items"`
	MemoryTTL      time.Duration `mapstructure:"memory_ttl"`
	RedisURL       string        `mapstructure:"redis_url"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PoolSize       int           `mapstructure:"pool_size"`
	PoolTimeout    time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutcomeStoreConfig selects the case-record persistence backend.
type OutcomeStoreConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// RateLimitConfig bounds per-client request rates on the HTTP surface.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

// EngineConfig carries every tunable weight, bonus, penalty and threshold of the
// suggestion pipeline. It is passed by value to each stage.
type EngineConfig struct {
	Modality             string                   `mapstructure:"modality"`
	DefaultWeights       CategoryWeights          `mapstructure:"default_weights"`
	AcuteKeywords        []string                 `mapstructure:"acute_keywords"`
	ChronicKeywords      []string                 `mapstructure:"chronic_keywords"`
	AutoSelectThreshold  float64                  `mapstructure:"auto_select_threshold"`
	FuzzyCandidateLimit  int                      `mapstructure:"fuzzy_candidate_limit"`
	LanguageMap          map[string][]string      `mapstructure:"language_map"`
	GradeMultipliers     GradeMultipliers         `mapstructure:"grade_multipliers"`
	ConstitutionBonus    ConstitutionBonusConfig  `mapstructure:"constitution_bonus"`
	KeynoteBonus         float64                  `mapstructure:"keynote_bonus"`
	ModalityBonus        ModalityBonusConfig      `mapstructure:"modality_bonus"`
	PathologySupport     float64                  `mapstructure:"pathology_support_bonus"`
	Coverage             CoverageConfig           `mapstructure:"coverage"`
	ConfidenceThresholds ConfidenceThresholds     `mapstructure:"confidence_thresholds"`
	MinScore             float64                  `mapstructure:"min_score"`
	MaxSuggestions       int                      `mapstructure:"max_suggestions"`
	ScoreGap             ScoreGapConfig           `mapstructure:"score_gap"`
	Clinical             ClinicalConfig           `mapstructure:"clinical"`
	Contradiction        ContradictionConfig      `mapstructure:"contradiction"`
}

// CategoryWeights are the default importance weights per category.
type CategoryWeights struct {
	Mental     float64 `mapstructure:"mental"`
	General    float64 `mapstructure:"general"`
	Particular float64 `mapstructure:"particular"`
	Modality   float64 `mapstructure:"modality"`
}

// For returns the default weight of a category.
func (w CategoryWeights) For(cat Category) float64 {
	switch cat {
	case CategoryMental:
		return w.Mental
	case CategoryGeneral:
		return w.General
	case CategoryParticular:
		return w.Particular
	case CategoryModality:
		return w.Modality
	default:
		return 0
	}
}

// GradeMultipliers re-weight rubric grades by evidential strength.
type GradeMultipliers struct {
	Grade1 float64 `mapstructure:"grade_1"`
	Grade2 float64 `mapstructure:"grade_2"`
	Grade3 float64 `mapstructure:"grade_3"`
	Grade4 float64 `mapstructure:"grade_4"`
}

// For returns the multiplier of a grade, zero for grades outside 1-4.
func (g GradeMultipliers) For(grade int) float64 {
	switch grade {
	case 1:
		return g.Grade1
	case 2:
		return g.Grade2
	case 3:
		return g.Grade3
	case 4:
		return g.Grade4
	default:
		return 0
	}
}

// ConstitutionBonusConfig is the per-trait bonus by trait kind.
type ConstitutionBonusConfig struct {
	Mental    float64 `mapstructure:"mental"`
	Physical  float64 `mapstructure:"physical"`
	Emotional float64 `mapstructure:"emotional"`
}

// For returns the bonus for a trait kind.
func (c ConstitutionBonusConfig) For(kind TraitKind) float64 {
	switch kind {
	case TraitMental:
		return c.Mental
	case TraitPhysical:
		return c.Physical
	case TraitEmotional:
		return c.Emotional
	default:
		return 0
	}
}

// ModalityBonusConfig rewards matching aggravations and ameliorations.
type ModalityBonusConfig struct {
	Worse  float64 `mapstructure:"worse"`
	Better float64 `mapstructure:"better"`
}

// CoverageConfig awards flat bonuses when a remedy covers most selected rubrics.
type CoverageConfig struct {
	HighThreshold   float64 `mapstructure:"high_threshold"`
	HighBonus       float64 `mapstructure:"high_bonus"`
	MediumThreshold float64 `mapstructure:"medium_threshold"`
	MediumBonus     float64 `mapstructure:"medium_bonus"`
}

// ConfidenceThresholds are the score cutoffs for confidence labels.
type ConfidenceThresholds struct {
	VeryHigh float64 `mapstructure:"very_high"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
	Low      float64 `mapstructure:"low"`
}

// Label maps a final score onto its confidence label.
func (t ConfidenceThresholds) Label(score float64) ScoreConfidence {
	switch {
	case score >= t.VeryHigh:
		return ScoreVeryHigh
	case score >= t.High:
		return ScoreHigh
	case score >= t.Medium:
		return ScoreMedium
	default:
		return ScoreLow
	}
}

// ScoreGapConfig holds the percentage gaps between the top score and the
// second score that shrink the suggestion list.
type ScoreGapConfig struct {
	Large  float64 `mapstructure:"large"`
	Medium float64 `mapstructure:"medium"`
}

// ClinicalConfig holds the clinical-intelligence multipliers.
type ClinicalConfig struct {
	AcuteBoost                   float64 `mapstructure:"acute_boost"`
	AcutePenalty                 float64 `mapstructure:"acute_penalty"`
	ChronicBoost                 float64 `mapstructure:"chronic_boost"`
	ChronicPenalty               float64 `mapstructure:"chronic_penalty"`
	ChronicConstitutionThreshold float64 `mapstructure:"chronic_constitution_threshold"`
	MentalDominanceThreshold     float64 `mapstructure:"mental_dominance_threshold"`
	MentalDominanceBoost         float64 `mapstructure:"mental_dominance_boost"`
	MentalConstitutionThreshold  float64 `mapstructure:"mental_constitution_threshold"`
	KeynoteBoost                 float64 `mapstructure:"keynote_boost"`
	PathologyBonus               float64 `mapstructure:"pathology_bonus"`
	CategoryNudge                float64 `mapstructure:"category_nudge"`
}

// ContradictionConfig holds incompatibility and repetition penalties.
type ContradictionConfig struct {
	IncompatibilityPenalty float64 `mapstructure:"incompatibility_penalty"`
	VeryRecentDays         int     `mapstructure:"very_recent_days"`
	VeryRecentPenalty      float64 `mapstructure:"very_recent_penalty"`
	RecentDays             int     `mapstructure:"recent_days"`
	RecentPenalty          float64 `mapstructure:"recent_penalty"`
	ModerateDays           int     `mapstructure:"moderate_days"`
	ModeratePenalty        float64 `mapstructure:"moderate_penalty"`
}

// DefaultEngineConfig returns the engine tunables with their stock values.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Modality: "classical",
		DefaultWeights: CategoryWeights{
			Mental:     3,
			General:    2,
			Particular: 1,
			Modality:   1.5,
		},
		AcuteKeywords:       []string{"acute", "sudden", "fever"},
		ChronicKeywords:     []string{"chronic", "long-standing"},
		AutoSelectThreshold: 70,
		FuzzyCandidateLimit: 5,
		LanguageMap:         map[string][]string{},
		GradeMultipliers: GradeMultipliers{
			Grade1: 0.8,
			Grade2: 1.0,
			Grade3: 1.2,
			Grade4: 1.5,
		},
		ConstitutionBonus: ConstitutionBonusConfig{
			Mental:    5,
			Physical:  3,
			Emotional: 4,
		},
		KeynoteBonus:     4,
		ModalityBonus:    ModalityBonusConfig{Worse: 3, Better: 3},
		PathologySupport: 5,
		Coverage: CoverageConfig{
			HighThreshold:   0.7,
			HighBonus:       15,
			MediumThreshold: 0.5,
			MediumBonus:     8,
		},
		ConfidenceThresholds: ConfidenceThresholds{
			VeryHigh: 100,
			High:     70,
			Medium:   40,
			Low:      0,
		},
		MinScore:       30,
		MaxSuggestions: 5,
		ScoreGap:       ScoreGapConfig{Large: 50, Medium: 30},
		Clinical: ClinicalConfig{
			AcuteBoost:                   1.3,
			AcutePenalty:                 0.7,
			ChronicBoost:                 1.2,
			ChronicPenalty:               0.6,
			ChronicConstitutionThreshold: 5,
			MentalDominanceThreshold:     0.5,
			MentalDominanceBoost:         1.25,
			MentalConstitutionThreshold:  3,
			KeynoteBoost:                 1.15,
			PathologyBonus:               10,
			CategoryNudge:                1.1,
		},
		Contradiction: ContradictionConfig{
			IncompatibilityPenalty: 20,
			VeryRecentDays:         7,
			VeryRecentPenalty:      50,
			RecentDays:             30,
			RecentPenalty:          20,
			ModerateDays:           90,
			ModeratePenalty:        5,
		},
	}
}
