// Package gitrepo stores note pages in a git-backed Logseq graph. Every
// write is one commit, so the history of a page is the history of the
// summaries folded into it.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"

	"github.com/michellemayes/logseq-assistant/internal/notes"
)

const (
	DefaultPagesDir = "pages"
	DefaultAuthor   = "Logseq Assistant"
)

var ErrDocumentNotFound = errors.New("document not found")

// CommitInfo is one revision of a page.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	repoDir  string
	pagesDir string
	author   string
	logger   logrus.FieldLogger

	// one worktree: all git operations serialize on mu
	mu sync.Mutex
}

func New(repoDir, author string, logger logrus.FieldLogger) *Service {
	if author == "" {
		author = DefaultAuthor
	}
	return &Service{repoDir: repoDir, pagesDir: DefaultPagesDir, author: author, logger: logger}
}

// EnsureRepo opens the graph repository, initializing it on a main branch
// when the directory holds no repository yet.
func (s *Service) EnsureRepo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.open()
	return err
}

// FindByName looks the page up in the pages directory. Logseq keeps pages
// flat, so folder is carried on the returned document but not used as a
// path. The document ID is the slash-separated path inside the repository.
func (s *Service) FindByName(_ context.Context, folder, filename string) (notes.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := path.Join(s.pagesDir, filename)
	full, err := s.resolve(id)
	if err != nil {
		return notes.Document{}, false, err
	}
	raw, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return notes.Document{}, false, nil
	}
	if err != nil {
		return notes.Document{}, false, fmt.Errorf("read page %s: %w", id, err)
	}
	return notes.Document{ID: id, Folder: folder, Filename: filename, Content: string(raw)}, true, nil
}

func (s *Service) Create(_ context.Context, folder, filename, content string) (notes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := path.Join(s.pagesDir, filename)
	if _, err := s.write(id, content, "Create "+filename, true); err != nil {
		return notes.Document{}, err
	}
	return notes.Document{ID: id, Folder: folder, Filename: filename, Content: content}, nil
}

func (s *Service) Update(_ context.Context, id, content string) (notes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := path.Base(id)
	if _, err := s.write(id, content, "Append summary to "+filename, false); err != nil {
		return notes.Document{}, err
	}
	return notes.Document{ID: id, Filename: filename, Content: content}, nil
}

func (s *Service) ReadContent(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read page %s: %w", id, err)
	}
	return string(raw), nil
}

// History lists the commits touching the page stored under filename,
// newest first. A limit of zero returns every commit.
func (s *Service) History(_ context.Context, filename string, limit int) ([]CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := path.Join(s.pagesDir, filename)
	if _, err := s.resolve(id); err != nil {
		return nil, err
	}
	repo, err := s.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &id})
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", id, err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	for {
		if limit > 0 && len(items) >= limit {
			break
		}
		commitObj, err := iter.Next()
		if err != nil {
			break
		}
		items = append(items, toCommitInfo(commitObj))
	}
	return items, nil
}

func (s *Service) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(s.repoDir, s.pagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create pages dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(s.repoDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	s.logger.WithField("dir", s.repoDir).Info("initialized notes repository")
	return repo, nil
}

// resolve maps a document ID to a path inside the pages directory.
func (s *Service) resolve(id string) (string, error) {
	rel := filepath.FromSlash(id)
	if !filepath.IsLocal(rel) || !strings.HasPrefix(id, s.pagesDir+"/") {
		return "", fmt.Errorf("document id %q is outside the pages directory", id)
	}
	return filepath.Join(s.repoDir, rel), nil
}

func (s *Service) write(id, content, message string, mustNotExist bool) (plumbing.Hash, error) {
	full, err := s.resolve(id)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	repo, err := s.open()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	_, statErr := os.Stat(full)
	switch {
	case mustNotExist && statErr == nil:
		return plumbing.ZeroHash, fmt.Errorf("page %s already exists", id)
	case !mustNotExist && errors.Is(statErr, os.ErrNotExist):
		return plumbing.ZeroHash, ErrDocumentNotFound
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("create pages dir: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write page %s: %w", id, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(id); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", id, err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.author,
			Email: fmt.Sprintf("%s@logseq-assistant.local", sanitizeEmail(s.author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit %s: %w", id, err)
	}
	s.logger.WithFields(logrus.Fields{"page": id, "commit": hash.String()[:8]}).Debug("committed page")
	return hash, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String(),
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "notes"
	}
	return string(out)
}
