package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/homeopathy-case-engine/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromFile creates a manager that reads an explicit config file.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigFile(path)
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/homeopathy-case-engine/")
	}

	v.SetEnvPrefix("HCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "20s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "homeopathy")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	// Cache defaults
	v.SetDefault("cache.memory_max_items", 2000)
	v.SetDefault("cache.memory_ttl", "15m")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Case-record store defaults
	v.SetDefault("outcome_store.driver", "postgres")
	v.SetDefault("outcome_store.sqlite_path", "./data/case_records.db")
	v.SetDefault("outcome_store.postgres_url", "")

	// Rate limiting defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.idle_ttl", "10m")

	m.setEngineDefaults()
}

// setEngineDefaults mirrors domain.DefaultEngineConfig so a bare deployment
// scores exactly like the tests do.
func (m *Manager) setEngineDefaults() {
	v := m.v
	d := domain.DefaultEngineConfig()

	v.SetDefault("engine.modality", d.Modality)
	v.SetDefault("engine.default_weights.mental", d.DefaultWeights.Mental)
	v.SetDefault("engine.default_weights.general", d.DefaultWeights.General)
	v.SetDefault("engine.default_weights.particular", d.DefaultWeights.Particular)
	v.SetDefault("engine.default_weights.modality", d.DefaultWeights.Modality)
	v.SetDefault("engine.acute_keywords", d.AcuteKeywords)
	v.SetDefault("engine.chronic_keywords", d.ChronicKeywords)
	v.SetDefault("engine.auto_select_threshold", d.AutoSelectThreshold)
	v.SetDefault("engine.fuzzy_candidate_limit", d.FuzzyCandidateLimit)

	v.SetDefault("engine.grade_multipliers.grade_1", d.GradeMultipliers.Grade1)
	v.SetDefault("engine.grade_multipliers.grade_2", d.GradeMultipliers.Grade2)
	v.SetDefault("engine.grade_multipliers.grade_3", d.GradeMultipliers.Grade3)
	v.SetDefault("engine.grade_multipliers.grade_4", d.GradeMultipliers.Grade4)

	v.SetDefault("engine.constitution_bonus.mental", d.ConstitutionBonus.Mental)
	v.SetDefault("engine.constitution_bonus.physical", d.ConstitutionBonus.Physical)
	v.SetDefault("engine.constitution_bonus.emotional", d.ConstitutionBonus.Emotional)
	v.SetDefault("engine.keynote_bonus", d.KeynoteBonus)
	v.SetDefault("engine.modality_bonus.worse", d.ModalityBonus.Worse)
	v.SetDefault("engine.modality_bonus.better", d.ModalityBonus.Better)
	v.SetDefault("engine.pathology_support_bonus", d.PathologySupport)

	v.SetDefault("engine.coverage.high_threshold", d.Coverage.HighThreshold)
	v.SetDefault("engine.coverage.high_bonus", d.Coverage.HighBonus)
	v.SetDefault("engine.coverage.medium_threshold", d.Coverage.MediumThreshold)
	v.SetDefault("engine.coverage.medium_bonus", d.Coverage.MediumBonus)

	v.SetDefault("engine.confidence_thresholds.very_high", d.ConfidenceThresholds.VeryHigh)
	v.SetDefault("engine.confidence_thresholds.high", d.ConfidenceThresholds.High)
	v.SetDefault("engine.confidence_thresholds.medium", d.ConfidenceThresholds.Medium)
	v.SetDefault("engine.confidence_thresholds.low", d.ConfidenceThresholds.Low)

	v.SetDefault("engine.min_score", d.MinScore)
	v.SetDefault("engine.max_suggestions", d.MaxSuggestions)
	v.SetDefault("engine.score_gap.large", d.ScoreGap.Large)
	v.SetDefault("engine.score_gap.medium", d.ScoreGap.Medium)

	v.SetDefault("engine.clinical.acute_boost", d.Clinical.AcuteBoost)
	v.SetDefault("engine.clinical.acute_penalty", d.Clinical.AcutePenalty)
	v.SetDefault("engine.clinical.chronic_boost", d.Clinical.ChronicBoost)
	v.SetDefault("engine.clinical.chronic_penalty", d.Clinical.ChronicPenalty)
	v.SetDefault("engine.clinical.chronic_constitution_threshold", d.Clinical.ChronicConstitutionThreshold)
	v.SetDefault("engine.clinical.mental_dominance_threshold", d.Clinical.MentalDominanceThreshold)
	v.SetDefault("engine.clinical.mental_dominance_boost", d.Clinical.MentalDominanceBoost)
	v.SetDefault("engine.clinical.mental_constitution_threshold", d.Clinical.MentalConstitutionThreshold)
	v.SetDefault("engine.clinical.keynote_boost", d.Clinical.KeynoteBoost)
	v.SetDefault("engine.clinical.pathology_bonus", d.Clinical.PathologyBonus)
	v.SetDefault("engine.clinical.category_nudge", d.Clinical.CategoryNudge)

	v.SetDefault("engine.contradiction.incompatibility_penalty", d.Contradiction.IncompatibilityPenalty)
	v.SetDefault("engine.contradiction.very_recent_days", d.Contradiction.VeryRecentDays)
	v.SetDefault("engine.contradiction.very_recent_penalty", d.Contradiction.VeryRecentPenalty)
	v.SetDefault("engine.contradiction.recent_days", d.Contradiction.RecentDays)
	v.SetDefault("engine.contradiction.recent_penalty", d.Contradiction.RecentPenalty)
	v.SetDefault("engine.contradiction.moderate_days", d.Contradiction.ModerateDays)
	v.SetDefault("engine.contradiction.moderate_penalty", d.Contradiction.ModeratePenalty)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetEngineConfig returns a copy of the engine tunables.
func (m *Manager) GetEngineConfig() domain.EngineConfig {
	cfg := m.config.Engine
	if cfg.LanguageMap == nil {
		cfg.LanguageMap = map[string][]string{}
	}
	return cfg
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	switch config.OutcomeStore.Driver {
	case "sqlite":
		if config.OutcomeStore.SQLitePath == "" {
			return fmt.Errorf("outcome_store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
	default:
		return fmt.Errorf("invalid outcome store driver: %q", config.OutcomeStore.Driver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return ValidateEngine(config.Engine)
}

// ValidateEngine checks the engine tunables for internally consistent values.
func ValidateEngine(e domain.EngineConfig) error {
	for grade := domain.MinGrade; grade <= domain.MaxGrade; grade++ {
		if e.GradeMultipliers.For(grade) <= 0 {
			return fmt.Errorf("grade multiplier for grade %d must be positive", grade)
		}
	}

	t := e.ConfidenceThresholds
	if !(t.VeryHigh > t.High && t.High > t.Medium && t.Medium >= t.Low) {
		return fmt.Errorf("confidence thresholds must be strictly decreasing: %+v", t)
	}

	if e.MaxSuggestions <= 0 {
		return fmt.Errorf("max_suggestions must be positive, got %d", e.MaxSuggestions)
	}
	if e.AutoSelectThreshold < 0 || e.AutoSelectThreshold > 100 {
		return fmt.Errorf("auto_select_threshold must be within 0-100, got %v", e.AutoSelectThreshold)
	}
	if e.ScoreGap.Large < e.ScoreGap.Medium {
		return fmt.Errorf("score_gap.large (%v) must not be below score_gap.medium (%v)", e.ScoreGap.Large, e.ScoreGap.Medium)
	}

	c := e.Contradiction
	if !(c.VeryRecentDays < c.RecentDays && c.RecentDays < c.ModerateDays) {
		return fmt.Errorf("repetition windows must be increasing: %d/%d/%d", c.VeryRecentDays, c.RecentDays, c.ModerateDays)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database connection as a URL, the form
// golang-migrate and lib/pq expect.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     "/" + db.Database,
		RawQuery: "sslmode=" + db.SSLMode,
	}
	return u.String()
}

// OutcomeStorePostgresURL returns the case-record store URL, defaulting to the
// reference database.
func (m *Manager) OutcomeStorePostgresURL() string {
	if m.config.OutcomeStore.PostgresURL != "" {
		return m.config.OutcomeStore.PostgresURL
	}
	return m.GetDatabaseURL()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
