package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTriggerCategory   = "AI Summarize"
	DefaultProcessedCategory = "AI Summarized"
	DefaultNotesFolder       = "AI Email Summaries"
	DefaultSecretsFile       = "secrets.env"
)

type Config struct {
	// Categories
	TriggerCategory   string
	ProcessedCategory string
	FetchLimit        int
	// Linking
	InternalDomains []string
	ProjectTerms    []string
	// Mail source
	MailProvider      string
	GraphClientID     string
	GraphTenantID     string
	GraphClientSecret string
	GraphAuthMode     string
	GraphUserID       string
	GraphScopes       []string
	GraphTokenCache   string
	GmailCredentials  string
	GmailTokenFile    string
	// Summarizer
	OpenAIKey            string
	OpenAIBaseURL        string
	OpenAIModel          string
	SummaryRatePerMinute int
	SummaryCacheTTL      time.Duration
	// Notes backend
	NotesBackend       string
	NotesFolder        string
	NoteTags           []string
	NoteSeparator      string
	DriveCredentials   string
	DriveDelegatedUser string
	DriveFolderID      string
	NotesRepoDir       string
	NotesGitAuthor     string
	DatabaseURL        string
	MigrationsDir      string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	// Optional services
	RedisURL       string
	MeiliURL       string
	MeiliMasterKey string
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	ReportTo     []string
	// Runtime
	PollInterval time.Duration
	OpsAddr      string
	LogLevel     string
	LogFormat    string
}

// Load reads the secrets file (if any) into the environment and builds the
// configuration. Variables already set in the environment take precedence
// over the secrets file.
func Load() (Config, error) {
	secrets := getenv("NOTESYNC_SECRETS_FILE", getenv("OUTLOOK_SECRETS_FILE", DefaultSecretsFile))
	if err := loadSecrets(secrets); err != nil {
		return Config{}, err
	}

	cfg := Config{
		TriggerCategory:   getenv("OUTLOOK_TRIGGER_CATEGORY", DefaultTriggerCategory),
		ProcessedCategory: getenv("OUTLOOK_PROCESSED_CATEGORY", DefaultProcessedCategory),
		FetchLimit:        getenvInt("OUTLOOK_FETCH_LIMIT", 10),
		InternalDomains:   lowerAll(splitList(os.Getenv("INTERNAL_EMAIL_DOMAINS"))),
		ProjectTerms:      splitList(os.Getenv("PROJECT_NAMES")),

		MailProvider:      strings.ToLower(getenv("MAIL_PROVIDER", "graph")),
		GraphClientID:     os.Getenv("MS_CLIENT_ID"),
		GraphTenantID:     os.Getenv("MS_TENANT_ID"),
		GraphClientSecret: os.Getenv("MS_CLIENT_SECRET"),
		GraphAuthMode:     strings.ToLower(os.Getenv("MS_AUTH_MODE")),
		GraphUserID:       os.Getenv("MS_GRAPH_USER_ID"),
		GraphScopes:       strings.Fields(strings.ReplaceAll(getenv("MS_DELEGATED_SCOPES", "Mail.ReadWrite"), ",", " ")),
		GraphTokenCache:   getenv("MS_TOKEN_CACHE_FILE", ".ms_token_cache.json"),
		GmailCredentials:  getenv("GMAIL_CREDENTIALS_FILE", "credentials.json"),
		GmailTokenFile:    getenv("GMAIL_TOKEN_FILE", "token.json"),

		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:          getenv("OPENAI_MODEL", "gpt-4o-mini"),
		SummaryRatePerMinute: getenvInt("SUMMARY_RATE_PER_MINUTE", 30),
		SummaryCacheTTL:      time.Duration(getenvInt("SUMMARY_CACHE_TTL_SECONDS", 86400)) * time.Second,

		NotesBackend:       strings.ToLower(getenv("NOTES_BACKEND", "drive")),
		NotesFolder:        getenv("NOTES_FOLDER", getenv("GOOGLE_DRIVE_FOLDER_NAME", DefaultNotesFolder)),
		NoteTags:           splitList(getenv("NOTE_TAGS", "email")),
		NoteSeparator:      os.Getenv("NOTE_SEPARATOR"),
		DriveCredentials:   os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
		DriveDelegatedUser: os.Getenv("GOOGLE_DELEGATED_USER"),
		DriveFolderID:      os.Getenv("GOOGLE_DRIVE_FOLDER_ID"),
		NotesRepoDir:       getenv("NOTES_REPO_DIR", "./data/graph"),
		NotesGitAuthor:     getenv("NOTES_GIT_AUTHOR", "Logseq Assistant"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MigrationsDir:      getenv("NOTESYNC_MIGRATIONS_DIR", "./db/migrations"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           getenv("S3_BUCKET", "logseq-notes"),
		S3UseSSL:           getenvBool("S3_USE_SSL", true),

		RedisURL:       os.Getenv("REDIS_URL"),
		MeiliURL:       os.Getenv("MEILI_URL"),
		MeiliMasterKey: os.Getenv("MEILI_MASTER_KEY"),
		// SMTP - empty by default, run reports disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Logseq Assistant"),
		ReportTo:     splitList(os.Getenv("REPORT_TO")),

		PollInterval: time.Duration(getenvInt("POLL_INTERVAL_SECONDS", 0)) * time.Second,
		OpsAddr:      os.Getenv("OPS_ADDR"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "text"),
	}

	if path := os.Getenv("PROJECT_NAMES_FILE"); path != "" {
		terms, err := LoadTermsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.ProjectTerms = append(cfg.ProjectTerms, terms...)
	}
	return cfg, nil
}

// Validate reports the settings the selected mail provider and notes
// backend cannot run without.
func (c Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require("OPENAI_API_KEY", c.OpenAIKey)
	require("OUTLOOK_TRIGGER_CATEGORY", c.TriggerCategory)
	require("OUTLOOK_PROCESSED_CATEGORY", c.ProcessedCategory)
	switch c.MailProvider {
	case "graph":
		require("MS_CLIENT_ID", c.GraphClientID)
		require("MS_TENANT_ID", c.GraphTenantID)
		if c.GraphAuth() == "client_credentials" {
			require("MS_CLIENT_SECRET", c.GraphClientSecret)
			require("MS_GRAPH_USER_ID", c.GraphUserID)
		}
	case "gmail":
		require("GMAIL_CREDENTIALS_FILE", c.GmailCredentials)
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider)
	}

	switch c.NotesBackend {
	case "drive":
		require("GOOGLE_SERVICE_ACCOUNT_FILE", c.DriveCredentials)
	case "git":
		require("NOTES_REPO_DIR", c.NotesRepoDir)
	case "postgres":
		require("DATABASE_URL", c.DatabaseURL)
	case "s3":
		require("S3_ENDPOINT", c.S3Endpoint)
		require("S3_ACCESS_KEY", c.S3AccessKey)
		require("S3_SECRET_KEY", c.S3SecretKey)
	default:
		return fmt.Errorf("unknown NOTES_BACKEND %q", c.NotesBackend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	// advancing would remove the trigger and add it straight back
	if strings.TrimSpace(c.TriggerCategory) == strings.TrimSpace(c.ProcessedCategory) {
		return fmt.Errorf("OUTLOOK_TRIGGER_CATEGORY and OUTLOOK_PROCESSED_CATEGORY must differ, both are %q", strings.TrimSpace(c.TriggerCategory))
	}
	return nil
}

// GraphAuth resolves the Graph auth mode. Without an explicit mode, client
// credentials are used when a client secret is present.
func (c Config) GraphAuth() string {
	switch c.GraphAuthMode {
	case "client_credentials", "device_code":
		return c.GraphAuthMode
	}
	if c.GraphClientSecret != "" {
		return "client_credentials"
	}
	return "device_code"
}

type termsFile struct {
	Projects []string `yaml:"projects"`
	Topics   []string `yaml:"topics"`
}

// LoadTermsFile reads extra link terms from a YAML file with "projects" and
// "topics" lists.
func LoadTermsFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terms file: %w", err)
	}
	var parsed termsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse terms file: %w", err)
	}
	terms := make([]string, 0, len(parsed.Projects)+len(parsed.Topics))
	for _, term := range append(parsed.Projects, parsed.Topics...) {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	return terms, nil
}

func loadSecrets(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load secrets file %s: %w", path, err)
	}
	return nil
}

func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	for i, value := range values {
		values[i] = strings.ToLower(value)
	}
	return values
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
