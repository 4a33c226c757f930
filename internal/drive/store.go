// Package drive keeps note pages as markdown files in a Google Drive
// folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/michellemayes/logseq-assistant/internal/notes"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	markdownMimeType = "text/markdown"
)

// QuotaAdvice is logged alongside storage quota failures. Service accounts
// have no storage of their own.
const QuotaAdvice = "Drive storage quota exceeded. Service accounts cannot own files; " +
	"set GOOGLE_DELEGATED_USER to impersonate a user with domain-wide delegation, " +
	"or point GOOGLE_DRIVE_FOLDER_ID at a folder on a shared drive."

type Store struct {
	srv            *gdrive.Service
	folderOverride string
	logger         logrus.FieldLogger

	mu      sync.Mutex
	folders map[string]string
}

// New returns a Drive-backed store. A non-empty folderID is used for every
// folder name instead of looking folders up.
func New(srv *gdrive.Service, folderID string, logger logrus.FieldLogger) *Store {
	return &Store{
		srv:            srv,
		folderOverride: strings.TrimSpace(folderID),
		logger:         logger,
		folders:        make(map[string]string),
	}
}

// EnsureFolder returns the folder ID for name, creating the folder when no
// non-trashed folder with that name exists.
func (s *Store) EnsureFolder(ctx context.Context, name string) (string, error) {
	if s.folderOverride != "" {
		return s.folderOverride, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.folders[name]; ok {
		return id, nil
	}

	s.logger.Debugf("looking up drive folder %q", name)
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	resp, err := s.srv.Files.List().
		Q(query).
		Spaces("drive").
		Fields("files(id, name)").
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("find drive folder %q: %w", name, err)
	}
	if len(resp.Files) > 0 {
		s.folders[name] = resp.Files[0].Id
		return resp.Files[0].Id, nil
	}

	s.logger.Infof("creating drive folder %q", name)
	folder, err := s.srv.Files.Create(&gdrive.File{Name: name, MimeType: folderMimeType}).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create drive folder %q: %w", name, err)
	}
	s.folders[name] = folder.Id
	return folder.Id, nil
}

func (s *Store) FindByName(ctx context.Context, folder, filename string) (notes.Document, bool, error) {
	folderID, err := s.EnsureFolder(ctx, folder)
	if err != nil {
		return notes.Document{}, false, err
	}

	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(filename), folderID)
	resp, err := s.srv.Files.List().
		Q(query).
		Spaces("drive").
		Fields("files(id, name, webViewLink)").
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return notes.Document{}, false, fmt.Errorf("find drive file %q: %w", filename, err)
	}
	if len(resp.Files) == 0 {
		return notes.Document{}, false, nil
	}
	f := resp.Files[0]
	return notes.Document{ID: f.Id, Folder: folder, Filename: f.Name, WebURL: f.WebViewLink}, true, nil
}

func (s *Store) Create(ctx context.Context, folder, filename, content string) (notes.Document, error) {
	folderID, err := s.EnsureFolder(ctx, folder)
	if err != nil {
		return notes.Document{}, err
	}

	s.logger.Debugf("creating %s in drive folder %s", filename, folderID)
	meta := &gdrive.File{Name: filename, MimeType: markdownMimeType, Parents: []string{folderID}}
	created, err := s.srv.Files.Create(meta).
		Media(strings.NewReader(content), googleapi.ContentType(markdownMimeType)).
		Fields("id, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		s.adviseOnQuota(err)
		return notes.Document{}, fmt.Errorf("create drive file %q: %w", filename, err)
	}
	return notes.Document{ID: created.Id, Folder: folder, Filename: filename, Content: content, WebURL: created.WebViewLink}, nil
}

func (s *Store) Update(ctx context.Context, id, content string) (notes.Document, error) {
	s.logger.Debugf("updating drive file %s", id)
	updated, err := s.srv.Files.Update(id, &gdrive.File{}).
		Media(strings.NewReader(content), googleapi.ContentType(markdownMimeType)).
		Fields("id, name, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		s.adviseOnQuota(err)
		return notes.Document{}, fmt.Errorf("update drive file %s: %w", id, err)
	}
	return notes.Document{ID: updated.Id, Filename: updated.Name, Content: content, WebURL: updated.WebViewLink}, nil
}

func (s *Store) ReadContent(ctx context.Context, id string) (string, error) {
	resp, err := s.srv.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("download drive file %s: %w", id, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read drive file %s: %w", id, err)
	}
	return string(raw), nil
}

func (s *Store) adviseOnQuota(err error) {
	if IsQuotaExceeded(err) {
		s.logger.WithError(err).Error(QuotaAdvice)
	}
}

// IsQuotaExceeded reports whether err is a Drive storageQuotaExceeded
// failure.
func IsQuotaExceeded(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "storageQuotaExceeded" {
			return true
		}
	}
	return strings.Contains(apiErr.Message, "storageQuotaExceeded")
}

// escapeQuery escapes a value for a single-quoted Drive query literal.
func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, "'", `\'`)
}
