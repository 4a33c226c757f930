package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/michellemayes/logseq-assistant/internal/category"
	"github.com/michellemayes/logseq-assistant/internal/config"
	"github.com/michellemayes/logseq-assistant/internal/email"
	"github.com/michellemayes/logseq-assistant/internal/gitrepo"
	"github.com/michellemayes/logseq-assistant/internal/logging"
	"github.com/michellemayes/logseq-assistant/internal/mail"
	"github.com/michellemayes/logseq-assistant/internal/metrics"
	"github.com/michellemayes/logseq-assistant/internal/notes"
	"github.com/michellemayes/logseq-assistant/internal/search"
	"github.com/michellemayes/logseq-assistant/internal/store"
	"github.com/michellemayes/logseq-assistant/internal/util"
)

// MessageSource lists messages carrying a category, newest first.
type MessageSource interface {
	FetchByCategory(ctx context.Context, category string, limit int) ([]notes.Message, error)
}

// CategoryUpdater replaces the category set of a message.
type CategoryUpdater interface {
	SetCategories(ctx context.Context, messageID string, categories category.Set) error
}

type Summarizer interface {
	Summarize(ctx context.Context, subject, body string) (notes.Summary, error)
}

// DocumentStore persists note pages. IDs are opaque to the service.
type DocumentStore interface {
	FindByName(ctx context.Context, folder, filename string) (notes.Document, bool, error)
	Create(ctx context.Context, folder, filename, content string) (notes.Document, error)
	Update(ctx context.Context, id, content string) (notes.Document, error)
	ReadContent(ctx context.Context, id string) (string, error)
}

type Journal interface {
	AppendJournal(ctx context.Context, entry store.JournalEntry) error
	ListJournal(ctx context.Context, runID string, limit int) ([]store.JournalEntry, error)
}

type Indexer interface {
	IndexNote(rec search.NoteRecord)
	Search(q search.Query) search.Response
}

type Notifier interface {
	IsConfigured() bool
	SendRunReport(to []string, data email.ReportData) error
}

// PageHistory lists the revisions of a page by filename, newest first.
// Only versioned document stores provide it.
type PageHistory interface {
	History(ctx context.Context, filename string, limit int) ([]gitrepo.CommitInfo, error)
}

// ErrHistoryUnavailable is returned by Service.History when the document
// store keeps no revisions.
var ErrHistoryUnavailable = errors.New("page history is not available for this notes backend")

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Service. Source, Categories, Summarizer
// and Documents are required; the rest may be nil.
type Deps struct {
	Source     MessageSource
	Categories CategoryUpdater
	Summarizer Summarizer
	Documents  DocumentStore
	Journal    Journal
	History    PageHistory
	Index      Indexer
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Checks     map[string]Pinger
	Logger     logrus.FieldLogger
}

type Service struct {
	cfg        config.Config
	domains    notes.DomainSet
	source     MessageSource
	categories CategoryUpdater
	summarizer Summarizer
	docs       DocumentStore
	journal    Journal
	history    PageHistory
	index      Indexer
	notifier   Notifier
	metrics    *metrics.Metrics
	checks     map[string]Pinger
	logger     logrus.FieldLogger

	now      func() time.Time
	newRunID func() string
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		cfg:        cfg,
		domains:    notes.NewDomainSet(cfg.InternalDomains...),
		source:     deps.Source,
		categories: deps.Categories,
		summarizer: deps.Summarizer,
		docs:       deps.Documents,
		journal:    deps.Journal,
		history:    deps.History,
		index:      deps.Index,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		checks:     deps.Checks,
		logger:     logger,
		now:        time.Now,
		newRunID:   func() string { return util.NewID("run") },
	}
}

// MessageFailure describes one message that was left unprocessed.
type MessageFailure struct {
	MessageID string `json:"messageId"`
	Subject   string `json:"subject"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// BatchReport summarizes one ProcessBatch call.
type BatchReport struct {
	RunID     string           `json:"runId"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`
	Fetched   int              `json:"fetched"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Failures  []MessageFailure `json:"failures"`
}

// Processed is the number of messages whose page was written and whose
// categories were advanced.
func (r BatchReport) Processed() int {
	return r.Created + r.Updated
}

// ProcessBatch fetches the messages carrying the trigger category and
// folds each into its page. A failing message is reported and left with
// its trigger category so the next run picks it up again. Errors are
// returned only for batch-level failures and cancellation, which is
// checked between messages.
func (s *Service) ProcessBatch(ctx context.Context) (BatchReport, error) {
	report := BatchReport{
		RunID:     s.newRunID(),
		StartedAt: s.now(),
		Failures:  []MessageFailure{},
	}
	logger := s.logger.WithField("run_id", report.RunID)

	messages, err := s.source.FetchByCategory(ctx, s.cfg.TriggerCategory, s.cfg.FetchLimit)
	if err != nil {
		s.finish(&report, "error")
		return report, fmt.Errorf("fetch messages: %w", err)
	}
	report.Fetched = len(messages)
	if s.metrics != nil {
		s.metrics.MessagesFetched.Add(float64(len(messages)))
	}
	if len(messages) == 0 {
		logger.Debugf("no messages matched category %q", s.cfg.TriggerCategory)
		s.finish(&report, "ok")
		return report, nil
	}
	logger.Infof("processing %d message(s)", len(messages))

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			logger.WithError(err).Warn("batch interrupted")
			s.finish(&report, "error")
			s.sendReport(logger, report)
			return report, err
		}
		if !category.NeedsProcessing(msg.Categories, s.cfg.TriggerCategory) {
			report.Skipped++
			continue
		}

		msgLogger := logging.WithMessage(s.logger, report.RunID, msg.ID)
		outcome, err := s.processMessage(ctx, report.RunID, msg, msgLogger)
		if err != nil {
			report.Failures = append(report.Failures, s.recordFailure(ctx, report.RunID, msg, err, msgLogger))
			continue
		}
		switch outcome {
		case store.OutcomeCreated:
			report.Created++
		case store.OutcomeUpdated:
			report.Updated++
		}
	}

	s.finish(&report, "ok")
	logger.WithFields(logrus.Fields{
		"created": report.Created,
		"updated": report.Updated,
		"failed":  len(report.Failures),
	}).Info("batch finished")
	s.sendReport(logger, report)
	return report, nil
}

func (s *Service) processMessage(ctx context.Context, runID string, msg notes.Message, logger logrus.FieldLogger) (string, error) {
	subject := notes.NormalizeSubject(msg.Subject)
	logger.Infof("processing message %q", subject)

	summary, err := s.summarizer.Summarize(ctx, subject, mail.HTMLToText(msg.Body))
	if err != nil {
		return "", processError(StageSummarize, msg.ID, err)
	}
	summary = summary.Normalized()

	now := s.now()
	filename := notes.ToFilename(subject)
	folder := s.cfg.NotesFolder
	input := notes.RenderInput{
		Message:  msg,
		Summary:  summary,
		DateLink: notes.DateLink(now),
		Subject:  subject,
		Terms:    notes.Terms(s.domains, s.cfg.ProjectTerms, summary.Topics),
		Domains:  s.domains,
	}

	existing, found, err := s.docs.FindByName(ctx, folder, filename)
	if err != nil {
		return "", processError(StageLookup, msg.ID, err)
	}

	var (
		doc     notes.Document
		content string
		outcome string
	)
	if found {
		current, err := s.docs.ReadContent(ctx, existing.ID)
		if err != nil {
			return "", processError(StageRead, msg.ID, err)
		}
		input.UpdatedAt = notes.RunTimestamp(now)
		content = notes.MergeWith(current, notes.RenderUpdate(input), s.cfg.NoteSeparator)
		doc, err = s.docs.Update(ctx, existing.ID, content)
		if err != nil {
			return "", processError(StageWrite, msg.ID, err)
		}
		if doc.WebURL == "" {
			doc.WebURL = existing.WebURL
		}
		outcome = store.OutcomeUpdated
	} else {
		content = notes.NewPage(s.cfg.NoteTags, notes.RenderInitial(input))
		doc, err = s.docs.Create(ctx, folder, filename, content)
		if err != nil {
			return "", processError(StageWrite, msg.ID, err)
		}
		outcome = store.OutcomeCreated
	}
	logger.WithField("outcome", outcome).Infof("stored %s %s", filename, doc.WebURL)

	next := category.Advance(msg.Categories, s.cfg.TriggerCategory, s.cfg.ProcessedCategory)
	if err := s.categories.SetCategories(ctx, msg.ID, next); err != nil {
		return "", processError(StageCategorize, msg.ID, err)
	}

	if s.metrics != nil {
		s.metrics.MessagesWritten.WithLabelValues(outcome).Inc()
	}
	s.appendJournal(ctx, logger, store.JournalEntry{
		RunID:     runID,
		MessageID: msg.ID,
		Subject:   subject,
		Filename:  filename,
		Outcome:   outcome,
	})
	if s.index != nil {
		s.index.IndexNote(search.NoteRecord{
			ID:        search.RecordID(folder, filename),
			Folder:    folder,
			Filename:  filename,
			Subject:   subject,
			Content:   content,
			Topics:    summary.Topics,
			WebURL:    doc.WebURL,
			UpdatedAt: now.Unix(),
		})
	}
	return outcome, nil
}

func (s *Service) recordFailure(ctx context.Context, runID string, msg notes.Message, err error, logger logrus.FieldLogger) MessageFailure {
	stage := "unknown"
	var procErr *ProcessError
	if errors.As(err, &procErr) {
		stage = procErr.Stage
	}
	logger.WithError(err).WithField("stage", stage).Error("failed to process message")
	if s.metrics != nil {
		s.metrics.MessagesFailed.WithLabelValues(stage).Inc()
	}

	subject := notes.NormalizeSubject(msg.Subject)
	s.appendJournal(ctx, logger, store.JournalEntry{
		RunID:     runID,
		MessageID: msg.ID,
		Subject:   subject,
		Filename:  notes.ToFilename(subject),
		Outcome:   store.OutcomeFailed,
		Stage:     stage,
		Detail:    err.Error(),
	})
	return MessageFailure{
		MessageID: msg.ID,
		Subject:   subject,
		Stage:     stage,
		Error:     err.Error(),
	}
}

// appendJournal is best effort: a journal outage never fails a message
// whose page and categories are already written.
func (s *Service) appendJournal(ctx context.Context, logger logrus.FieldLogger, entry store.JournalEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AppendJournal(context.WithoutCancel(ctx), entry); err != nil {
		logger.WithError(err).Warn("append processing log")
	}
}

func (s *Service) finish(report *BatchReport, result string) {
	report.Duration = s.now().Sub(report.StartedAt)
	if s.metrics == nil {
		return
	}
	s.metrics.Batches.WithLabelValues(result).Inc()
	s.metrics.BatchDuration.Observe(report.Duration.Seconds())
	if result == "ok" {
		s.metrics.LastSuccess.Set(float64(s.now().Unix()))
	}
}

func (s *Service) sendReport(logger logrus.FieldLogger, report BatchReport) {
	if len(report.Failures) == 0 || s.notifier == nil || !s.notifier.IsConfigured() || len(s.cfg.ReportTo) == 0 {
		return
	}
	failures := make([]email.ReportFailure, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, email.ReportFailure{
			MessageID: f.MessageID,
			Subject:   f.Subject,
			Stage:     f.Stage,
			Error:     f.Error,
		})
	}
	err := s.notifier.SendRunReport(s.cfg.ReportTo, email.ReportData{
		RunID:     report.RunID,
		StartedAt: report.StartedAt,
		Duration:  report.Duration.Round(time.Millisecond),
		Fetched:   report.Fetched,
		Created:   report.Created,
		Updated:   report.Updated,
		Failures:  failures,
	})
	if err != nil {
		logger.WithError(err).Warn("send run report")
		return
	}
	logger.Infof("run report sent to %s", strings.Join(s.cfg.ReportTo, ", "))
}

// Search queries the note index. Without an index every query is empty.
func (s *Service) Search(q search.Query) search.Response {
	if s.index == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.index.Search(q)
}

// Journal lists processing log entries, newest first.
func (s *Service) Journal(ctx context.Context, runID string, limit int) ([]store.JournalEntry, error) {
	if s.journal == nil {
		return []store.JournalEntry{}, nil
	}
	return s.journal.ListJournal(ctx, runID, limit)
}

// History lists the revisions of a page. page is either a page filename
// or a subject line, which is mapped to its filename the same way
// ProcessBatch does.
func (s *Service) History(ctx context.Context, page string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	filename := page
	if !strings.HasSuffix(page, notes.Extension) {
		filename = notes.ToFilename(notes.NormalizeSubject(page))
	}
	return s.history.History(ctx, filename, limit)
}

// Readiness pings every registered dependency and returns the failures by
// name.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		results[name] = check.Ping(ctx)
	}
	return results
}
