package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/michellemayes/logseq-assistant/internal/app"
	"github.com/michellemayes/logseq-assistant/internal/auth"
	"github.com/michellemayes/logseq-assistant/internal/cache"
	"github.com/michellemayes/logseq-assistant/internal/config"
	"github.com/michellemayes/logseq-assistant/internal/drive"
	"github.com/michellemayes/logseq-assistant/internal/email"
	"github.com/michellemayes/logseq-assistant/internal/gitrepo"
	"github.com/michellemayes/logseq-assistant/internal/logging"
	"github.com/michellemayes/logseq-assistant/internal/mail"
	"github.com/michellemayes/logseq-assistant/internal/metrics"
	"github.com/michellemayes/logseq-assistant/internal/objectstore"
	"github.com/michellemayes/logseq-assistant/internal/search"
	"github.com/michellemayes/logseq-assistant/internal/store"
	"github.com/michellemayes/logseq-assistant/internal/summary"
)

type flags struct {
	once   bool
	search string
	folder string
}

func main() {
	var f flags
	flag.BoolVar(&f.once, "once", false, "process a single batch and exit, even when POLL_INTERVAL_SECONDS is set")
	flag.StringVar(&f.search, "search", "", "search note pages and print the results as JSON")
	flag.StringVar(&f.folder, "folder", "", "restrict -search to one notes folder")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration failed")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, f, logger)
	stop()
	if err != nil {
		logger.WithError(err).Fatal("notesync failed")
	}
}

func run(ctx context.Context, cfg config.Config, f flags, logger *logrus.Logger) error {
	checks := map[string]app.Pinger{}

	var pg *store.PostgresStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			logger.Infof("applied migrations: %s", strings.Join(applied, ", "))
		}
		pg = store.NewPostgresStore(db)
		checks["database"] = pg
	}

	pgfts := fullTextFallback(cfg, pg)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	defer searchService.Close()

	if f.search != "" {
		resp := searchService.Search(search.Query{Text: f.search, Folder: f.folder, Limit: 20})
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New()

	mailbox, err := openMailbox(ctx, cfg, logger)
	if err != nil {
		return err
	}
	docs, err := openDocuments(ctx, cfg, pg, checks, logger)
	if err != nil {
		return err
	}

	var summaryCache summary.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.SummaryCacheTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCache.Close()
		logger.Info("using redis for the summary cache")
		summaryCache = redisCache
		checks["cache"] = redisCache
	} else {
		summaryCache = cache.NewMemoryCache(cfg.SummaryCacheTTL)
	}

	summarizer := summary.New(summary.Options{
		BaseURL:       cfg.OpenAIBaseURL,
		APIKey:        cfg.OpenAIKey,
		Model:         cfg.OpenAIModel,
		RatePerMinute: cfg.SummaryRatePerMinute,
		Cache:         summaryCache,
		Logger:        logger,
		OnCacheHit:    m.SummaryCacheHits.Inc,
	})

	deps := app.Deps{
		Source:     mailbox,
		Categories: mailbox,
		Summarizer: summarizer,
		Documents:  docs,
		Index:      searchService,
		Notifier: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Metrics: m,
		Checks:  checks,
		Logger:  logger,
	}
	if pg != nil {
		deps.Journal = pg
	}
	if history, ok := docs.(app.PageHistory); ok {
		deps.History = history
	}
	service := app.New(cfg, deps)

	if cfg.OpsAddr != "" {
		server := &http.Server{
			Addr:              cfg.OpsAddr,
			Handler:           app.NewHTTPServer(service, m.Handler(), logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Infof("ops server listening on %s", cfg.OpsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("ops server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("ops server shutdown")
			}
		}()
	}

	if f.once || cfg.PollInterval <= 0 {
		report, err := service.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		logger.Infof("run %s: %d created, %d updated, %d failed", report.RunID, report.Created, report.Updated, len(report.Failures))
		return nil
	}

	poller, err := app.NewPoller(ctx, service, cfg.PollInterval, logger)
	if err != nil {
		return err
	}
	poller.Start()
	<-ctx.Done()
	logger.Info("shutting down, waiting for the running batch")
	return poller.Stop()
}

// fullTextFallback returns the Postgres search backend. The notes table only
// holds pages when Postgres is the notes backend, so other backends search
// through Meilisearch alone.
func fullTextFallback(cfg config.Config, pg *store.PostgresStore) *search.PgFTS {
	if pg == nil || cfg.NotesBackend != "postgres" {
		return nil
	}
	return search.NewPgFTS(pg.DB())
}

type mailbox interface {
	app.MessageSource
	app.CategoryUpdater
}

func openMailbox(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (mailbox, error) {
	switch cfg.MailProvider {
	case "gmail":
		client, err := auth.GmailClient(ctx, cfg.GmailCredentials, cfg.GmailTokenFile, os.Stdin, logger)
		if err != nil {
			return nil, err
		}
		srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		return mail.NewGmail(srv, logger), nil
	default:
		mode := cfg.GraphAuth()
		client, err := auth.GraphClient(ctx, auth.GraphSettings{
			TenantID:     cfg.GraphTenantID,
			ClientID:     cfg.GraphClientID,
			ClientSecret: cfg.GraphClientSecret,
			Mode:         mode,
			Scopes:       cfg.GraphScopes,
			TokenCache:   cfg.GraphTokenCache,
		}, logger)
		if err != nil {
			return nil, err
		}
		// delegated tokens address the signed-in mailbox
		userID := ""
		if mode == "client_credentials" {
			userID = cfg.GraphUserID
		}
		return mail.NewGraph(client, mail.DefaultGraphBaseURL, userID, logger), nil
	}
}

func openDocuments(ctx context.Context, cfg config.Config, pg *store.PostgresStore, checks map[string]app.Pinger, logger logrus.FieldLogger) (app.DocumentStore, error) {
	switch cfg.NotesBackend {
	case "git":
		repo := gitrepo.New(cfg.NotesRepoDir, cfg.NotesGitAuthor, logger)
		if err := repo.EnsureRepo(); err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		if pg == nil {
			return nil, errors.New("postgres notes backend requires DATABASE_URL")
		}
		return pg, nil
	case "s3":
		objects, err := objectstore.New(objectstore.Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		checks["object_store"] = objects
		return objects, nil
	default:
		client, err := auth.DriveClient(ctx, cfg.DriveCredentials, cfg.DriveDelegatedUser)
		if err != nil {
			return nil, err
		}
		srv, err := gdrive.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("create drive service: %w", err)
		}
		return drive.New(srv, cfg.DriveFolderID, logger), nil
	}
}
