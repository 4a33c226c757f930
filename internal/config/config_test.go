package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "empty", value: "", want: []string{}},
		{name: "commas", value: "corp.com, example.org ,", want: []string{"corp.com", "example.org"}},
		{name: "newlines", value: "Atlas\nProject Nova\r\n\nZephyr", want: []string{"Atlas", "Project Nova", "Zephyr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitList(tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("splitList(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestLoadUsesSecretsFileWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets.env")
	body := strings.Join([]string{
		"OPENAI_API_KEY=from-file",
		"INTERNAL_EMAIL_DOMAINS=Corp.com,Example.org",
		"OUTLOOK_FETCH_LIMIT=25",
		"NOTES_BACKEND=git",
	}, "\n")
	if err := os.WriteFile(secrets, []byte(body), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	t.Setenv("NOTESYNC_SECRETS_FILE", secrets)
	t.Setenv("OPENAI_API_KEY", "from-env")
	// godotenv only fills variables that are absent, so clear these after
	// registering their restore with t.Setenv.
	for _, key := range []string{"INTERNAL_EMAIL_DOMAINS", "OUTLOOK_FETCH_LIMIT", "NOTES_BACKEND"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAIKey != "from-env" {
		t.Fatalf("OpenAIKey = %q, want environment value", cfg.OpenAIKey)
	}
	if !reflect.DeepEqual(cfg.InternalDomains, []string{"corp.com", "example.org"}) {
		t.Fatalf("InternalDomains = %v", cfg.InternalDomains)
	}
	if cfg.FetchLimit != 25 {
		t.Fatalf("FetchLimit = %d, want 25", cfg.FetchLimit)
	}
	if cfg.NotesBackend != "git" {
		t.Fatalf("NotesBackend = %q, want git", cfg.NotesBackend)
	}
	if cfg.TriggerCategory != DefaultTriggerCategory || cfg.ProcessedCategory != DefaultProcessedCategory {
		t.Fatalf("unexpected category defaults: %q / %q", cfg.TriggerCategory, cfg.ProcessedCategory)
	}
}

func TestLoadMissingSecretsFileIsNotAnError(t *testing.T) {
	t.Setenv("NOTESYNC_SECRETS_FILE", filepath.Join(t.TempDir(), "absent.env"))
	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadTermsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.yaml")
	body := "projects:\n  - Atlas\n  - ' '\ntopics:\n  - Budget\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write terms: %v", err)
	}
	terms, err := LoadTermsFile(path)
	if err != nil {
		t.Fatalf("LoadTermsFile() error = %v", err)
	}
	if !reflect.DeepEqual(terms, []string{"Atlas", "Budget"}) {
		t.Fatalf("LoadTermsFile() = %v", terms)
	}

	if _, err := LoadTermsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing terms file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		OpenAIKey:        "key",
		MailProvider:     "graph",
		GraphClientID:    "client",
		GraphTenantID:    "tenant",
		NotesBackend:     "drive",
		DriveCredentials: "sa.json",

		TriggerCategory:   DefaultTriggerCategory,
		ProcessedCategory: DefaultProcessedCategory,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "device code graph", mutate: func(*Config) {}},
		{name: "client credentials need user", mutate: func(c *Config) { c.GraphClientSecret = "s" }, wantErr: "MS_GRAPH_USER_ID"},
		{name: "missing openai key", mutate: func(c *Config) { c.OpenAIKey = "" }, wantErr: "OPENAI_API_KEY"},
		{name: "unknown provider", mutate: func(c *Config) { c.MailProvider = "pop3" }, wantErr: "unknown MAIL_PROVIDER"},
		{name: "postgres backend", mutate: func(c *Config) { c.NotesBackend = "postgres" }, wantErr: "DATABASE_URL"},
		{name: "s3 backend", mutate: func(c *Config) {
			c.NotesBackend = "s3"
			c.S3Endpoint, c.S3AccessKey, c.S3SecretKey = "localhost:9000", "a", "b"
		}},
		{name: "unknown backend", mutate: func(c *Config) { c.NotesBackend = "ftp" }, wantErr: "unknown NOTES_BACKEND"},
		{name: "same category labels", mutate: func(c *Config) { c.ProcessedCategory = c.TriggerCategory }, wantErr: "must differ"},
		{name: "labels equal after trimming", mutate: func(c *Config) { c.ProcessedCategory = " AI Summarize " }, wantErr: "must differ"},
		{name: "blank trigger", mutate: func(c *Config) { c.TriggerCategory = "  " }, wantErr: "OUTLOOK_TRIGGER_CATEGORY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestGraphAuth(t *testing.T) {
	tests := []struct {
		mode, secret, want string
	}{
		{mode: "", secret: "", want: "device_code"},
		{mode: "", secret: "s", want: "client_credentials"},
		{mode: "device_code", secret: "s", want: "device_code"},
		{mode: "bogus", secret: "", want: "device_code"},
	}
	for _, tt := range tests {
		cfg := Config{GraphAuthMode: tt.mode, GraphClientSecret: tt.secret}
		if got := cfg.GraphAuth(); got != tt.want {
			t.Errorf("GraphAuth(%q, %q) = %q, want %q", tt.mode, tt.secret, got, tt.want)
		}
	}
}
