// Package email mails batch run reports over SMTP.
package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", headerSafe(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ReportFailure is one failed message in a run report.
type ReportFailure struct {
	MessageID string
	Subject   string
	Stage     string
	Error     string
}

// ReportData is the content of a batch run report.
type ReportData struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Fetched   int
	Created   int
	Updated   int
	Failures  []ReportFailure
}

// SendRunReport mails a plain-text summary of a batch that had failures.
func (s *Service) SendRunReport(to []string, data ReportData) error {
	body, err := renderTemplate(runReportTemplate, data)
	if err != nil {
		return fmt.Errorf("render run report: %w", err)
	}
	subject := fmt.Sprintf("Email summary run %s: %d failed", shortID(data.RunID), len(data.Failures))
	return s.SendEmail(to, subject, body)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func headerSafe(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

const runReportTemplate = `Run {{.RunID}} started {{.StartedAt.UTC.Format "2006-01-02 15:04:05"}} UTC and took {{.Duration}}.

Fetched: {{.Fetched}}
Created: {{.Created}}
Updated: {{.Updated}}
Failed:  {{len .Failures}}
{{range .Failures}}
- {{if .Subject}}{{.Subject}}{{else}}(no subject){{end}} [{{.MessageID}}]
  stage: {{.Stage}}
  error: {{.Error}}
{{end}}
Failed messages keep their trigger category and will be retried on the next run.
`
