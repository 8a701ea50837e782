// Package config handles DailyOS configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.dailyos/config.yaml, /config/config.yaml,
// /etc/dailyos/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".dailyos", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/dailyos/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all DailyOS configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Gmail     GmailConfig     `yaml:"gmail"`
	Quill     QuillConfig     `yaml:"quill"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Inbox     InboxConfig     `yaml:"inbox"`
	AI        AIConfig        `yaml:"ai"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Google    GoogleConfig    `yaml:"google"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	// DevMode selects the dev-mode database path (dailyos-dev.db instead
	// of dailyos.db) so a development run never touches production state.
	DevMode bool `yaml:"dev_mode"`
}

// WorkspaceConfig defines the markdown/file workspace the core reads
// and writes to via the file-IO adapter.
type WorkspaceConfig struct {
	// Path is the root directory for the Accounts/, People/, _today/,
	// and _archive/ trees. Supports ~ expansion.
	Path string `yaml:"path"`
	// UserDomains are the user's own email domains, used to classify
	// attendees as internal vs external.
	UserDomains []string `yaml:"user_domains"`
	// PersonalEmailDomains are consumer domains (gmail.com, etc.) that
	// are never treated as account-owned siblings during alias resolution.
	PersonalEmailDomains []string `yaml:"personal_email_domains"`
	// WorkHourStart/End bound the calendar/gmail poll window, 24h local
	// time (e.g. "07:00", "19:00").
	WorkHourStart string `yaml:"work_hour_start"`
	WorkHourEnd   string `yaml:"work_hour_end"`
	Timezone      string `yaml:"timezone"`
}

// CalendarConfig defines Google Calendar sync settings. The core consumes
// an access-token provider; OAuth consent mechanics are out of scope.
type CalendarConfig struct {
	Enabled         bool `yaml:"enabled"`
	PollIntervalMin int  `yaml:"poll_interval_minutes"`
	// MaxAllHandsAttendees is the attendee-count threshold above which a
	// meeting is excluded from per-attendee person materialization.
	MaxAllHandsAttendees int `yaml:"max_all_hands_attendees"`
}

// GmailConfig defines Gmail polling settings (IMAP-based, as the sole
// credentialed account; the access token is obtained elsewhere).
type GmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	PollIntervalMin int    `yaml:"poll_interval_minutes"`
	IMAPHost        string `yaml:"imap_host"`
	IMAPPort        int    `yaml:"imap_port"`
	Account         string `yaml:"account"`
}

// QuillConfig defines transcript-provider sync settings.
type QuillConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	MaxAttempts          int  `yaml:"max_attempts"`
	BackfillDays         int  `yaml:"backfill_days"`
	AbandonedRetryMinAge int  `yaml:"abandoned_retry_min_age_days"`
	AbandonedRetryMaxAge int  `yaml:"abandoned_retry_max_age_days"`
}

// ScheduleConfig defines the daily/weekly triggers for scheduled workflows.
type ScheduleConfig struct {
	TodayAt   string `yaml:"today_at"`   // e.g. "07:00"
	ArchiveAt string `yaml:"archive_at"` // e.g. "18:00"
	WeekAt    string `yaml:"week_at"`    // e.g. "Mon 06:30"
}

// InboxConfig defines inbox processor settings.
type InboxConfig struct {
	Dir                  string `yaml:"dir"`
	MaxAIEnrichmentBatch int    `yaml:"max_ai_enrichment_batch"`
	MaxExtractedBytes    int    `yaml:"max_extracted_bytes"`
}

// AIConfig names the extraction/synthesis tiers the core routes
// completions to via the text-completion callable, and the provider
// credentials the LLM client is built from.
type AIConfig struct {
	ExtractionModel string `yaml:"extraction_model"`
	SynthesisModel  string `yaml:"synthesis_model"`
	OllamaURL       string `yaml:"ollama_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

// EmbeddingsConfig points the resolver's embedding signal at an Ollama
// instance (spec §4.2 signal producer #5).
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GoogleAccountConfig is one account's out-of-band-issued OAuth refresh
// credential (spec §1: consent-flow mechanics are out of scope).
type GoogleAccountConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// GoogleConfig carries the two Google-authenticated accounts DailyOS
// polls: Calendar and Gmail.
type GoogleConfig struct {
	Calendar GoogleAccountConfig `yaml:"calendar"`
	Gmail    GoogleAccountConfig `yaml:"gmail"`
}

// Configured reports whether calendar sync has enough configuration to run.
func (c CalendarConfig) Configured() bool {
	return c.Enabled
}

// Configured reports whether Gmail polling has enough configuration to run.
func (c GmailConfig) Configured() bool {
	return c.Enabled && c.IMAPHost != "" && c.Account != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}). This is a
	// convenience for container deployments; the recommended approach
	// is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "~/.dailyos"
	}
	if c.Calendar.PollIntervalMin == 0 {
		c.Calendar.PollIntervalMin = 5
	}
	if c.Calendar.MaxAllHandsAttendees == 0 {
		c.Calendar.MaxAllHandsAttendees = 50
	}
	if c.Gmail.PollIntervalMin == 0 {
		c.Gmail.PollIntervalMin = 5
	}
	if c.Gmail.IMAPPort == 0 {
		c.Gmail.IMAPPort = 993
	}
	if c.Quill.MaxAttempts == 0 {
		c.Quill.MaxAttempts = 5
	}
	if c.Quill.BackfillDays == 0 {
		c.Quill.BackfillDays = 14
	}
	if c.Quill.AbandonedRetryMinAge == 0 {
		c.Quill.AbandonedRetryMinAge = 3
	}
	if c.Quill.AbandonedRetryMaxAge == 0 {
		c.Quill.AbandonedRetryMaxAge = 14
	}
	if c.Schedule.TodayAt == "" {
		c.Schedule.TodayAt = "07:00"
	}
	if c.Schedule.ArchiveAt == "" {
		c.Schedule.ArchiveAt = "18:00"
	}
	if c.Inbox.Dir == "" && c.Workspace.Path != "" {
		c.Inbox.Dir = filepath.Join(c.Workspace.Path, "_inbox")
	}
	if c.Inbox.MaxAIEnrichmentBatch == 0 {
		c.Inbox.MaxAIEnrichmentBatch = 5
	}
	if c.Inbox.MaxExtractedBytes == 0 {
		c.Inbox.MaxExtractedBytes = 100 * 1024
	}
	if c.Workspace.Timezone == "" {
		c.Workspace.Timezone = "Local"
	}
	if c.Workspace.WorkHourStart == "" {
		c.Workspace.WorkHourStart = "07:00"
	}
	if c.Workspace.WorkHourEnd == "" {
		c.Workspace.WorkHourEnd = "19:00"
	}
	if len(c.Workspace.PersonalEmailDomains) == 0 {
		c.Workspace.PersonalEmailDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "icloud.com", "hotmail.com"}
	}
	if c.AI.ExtractionModel == "" {
		c.AI.ExtractionModel = "extraction"
	}
	if c.AI.SynthesisModel == "" {
		c.AI.SynthesisModel = "synthesis"
	}
	if c.AI.OllamaURL == "" {
		c.AI.OllamaURL = "http://localhost:11434"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.AI.OllamaURL
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Workspace.Path == "" {
		return fmt.Errorf("workspace.path is required")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.Calendar.Enabled && c.Calendar.PollIntervalMin < 1 {
		return fmt.Errorf("calendar.poll_interval_minutes must be >= 1")
	}
	if c.Gmail.Enabled && c.Gmail.PollIntervalMin < 1 {
		return fmt.Errorf("gmail.poll_interval_minutes must be >= 1")
	}
	if c.Quill.Enabled && c.Quill.MaxAttempts < 1 {
		return fmt.Errorf("quill.max_attempts must be >= 1")
	}
	return nil
}

// ExpandPath expands a leading "~" to the user's home directory.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// DBPath returns the entity store's SQLite path, under DataDir, chosen
// by DevMode so a development run never touches production state.
func (c *Config) DBPath() string {
	name := "dailyos.db"
	if c.DevMode {
		name = "dailyos-dev.db"
	}
	return filepath.Join(ExpandPath(c.DataDir), name)
}

// InWorkHours reports whether hhmm (24h local clock, "15:04") falls
// within the configured work-hour window. Calendar/Gmail polling is
// skipped outside this window.
func (c *Config) InWorkHours(hhmm string) bool {
	return hhmm >= c.Workspace.WorkHourStart && hhmm <= c.Workspace.WorkHourEnd
}

// Default returns a default configuration suitable for local development.
// All defaults are already applied. Validate is not called since
// workspace.path is empty until the caller sets it.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
