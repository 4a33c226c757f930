package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/michellemayes/logseq-assistant/internal/logging"
)

type fakeDrive struct {
	mu      sync.Mutex
	queries []string
	uploads []string
	folders int
}

func (f *fakeDrive) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query().Get("q")
			f.queries = append(f.queries, q)
			if strings.Contains(q, "Budget.md") {
				_, _ = w.Write([]byte(`{"files":[{"id":"file-1","name":"Budget.md","webViewLink":"https://drive.test/file-1"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"files":[]}`))
		case http.MethodPost:
			f.folders++
			_, _ = w.Write([]byte(`{"id":"folder-new"}`))
		}
	})
	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		_, _ = w.Write([]byte(`{"id":"file-2","webViewLink":"https://drive.test/file-2"}`))
	})
	mux.HandleFunc("/upload/drive/v3/files/file-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("update method = %s", r.Method)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		_, _ = w.Write([]byte(`{"id":"file-1","name":"Budget.md","webViewLink":"https://drive.test/file-1"}`))
	})
	mux.HandleFunc("/files/file-1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("expected media download, got %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("tags:: email\n\n- existing\n"))
	})
	return mux
}

func newTestStore(t *testing.T, handler http.Handler, folderID string) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := gdrive.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		t.Fatalf("drive.NewService() error = %v", err)
	}
	return New(svc, folderID, logging.Discard())
}

func TestEnsureFolderCreatesOnceAndCaches(t *testing.T) {
	fake := &fakeDrive{}
	store := newTestStore(t, fake.handler(t), "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id, err := store.EnsureFolder(ctx, "Bob's Notes")
		if err != nil {
			t.Fatalf("EnsureFolder() error = %v", err)
		}
		if id != "folder-new" {
			t.Fatalf("EnsureFolder() = %q", id)
		}
	}
	if fake.folders != 1 {
		t.Fatalf("folders created = %d, want 1", fake.folders)
	}
	if len(fake.queries) != 1 || !strings.Contains(fake.queries[0], `name = 'Bob\'s Notes'`) {
		t.Fatalf("unexpected folder query: %v", fake.queries)
	}
}

func TestFolderOverrideSkipsLookup(t *testing.T) {
	fake := &fakeDrive{}
	store := newTestStore(t, fake.handler(t), "fixed-folder")

	doc, found, err := store.FindByName(context.Background(), "ignored", "Budget.md")
	if err != nil || !found {
		t.Fatalf("FindByName() = %v, %v", found, err)
	}
	if doc.ID != "file-1" || doc.WebURL != "https://drive.test/file-1" {
		t.Fatalf("FindByName() = %+v", doc)
	}
	if len(fake.queries) != 1 || !strings.Contains(fake.queries[0], "'fixed-folder' in parents") {
		t.Fatalf("unexpected queries: %v", fake.queries)
	}
}

func TestCreateUpdateRead(t *testing.T) {
	fake := &fakeDrive{}
	store := newTestStore(t, fake.handler(t), "fixed-folder")
	ctx := context.Background()

	if _, found, err := store.FindByName(ctx, "Summaries", "Other.md"); err != nil || found {
		t.Fatalf("FindByName() = %v, %v", found, err)
	}

	created, err := store.Create(ctx, "Summaries", "Other.md", "- new page\n")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "file-2" || created.WebURL == "" {
		t.Fatalf("Create() = %+v", created)
	}

	content, err := store.ReadContent(ctx, "file-1")
	if err != nil {
		t.Fatalf("ReadContent() error = %v", err)
	}
	if content != "tags:: email\n\n- existing\n" {
		t.Fatalf("ReadContent() = %q", content)
	}

	if _, err := store.Update(ctx, "file-1", content+"\n- appended\n"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(fake.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(fake.uploads))
	}
	if !strings.Contains(fake.uploads[0], "- new page") || !strings.Contains(fake.uploads[1], "- appended") {
		t.Fatalf("upload bodies missing content: %q", fake.uploads)
	}
}

func TestCreateReportsQuotaExceeded(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The user's Drive storage quota has been exceeded.",
			"errors":[{"domain":"usageLimits","reason":"storageQuotaExceeded","message":"quota"}]}}`))
	})
	store := newTestStore(t, handler, "fixed-folder")

	_, err := store.Create(context.Background(), "Summaries", "A.md", "x")
	if err == nil {
		t.Fatal("expected create error")
	}
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestIsQuotaExceeded(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"reason", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "storageQuotaExceeded"}}}, true},
		{"wrapped", fmt.Errorf("create: %w", &googleapi.Error{Code: 403, Message: "storageQuotaExceeded"}), true},
		{"other reason", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsQuotaExceeded(tc.err); got != tc.want {
				t.Fatalf("IsQuotaExceeded() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEscapeQuery(t *testing.T) {
	if got := escapeQuery(`it's a \ test`); got != `it\'s a \\ test` {
		t.Fatalf("escapeQuery() = %q", got)
	}
}
