package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/michellemayes/logseq-assistant/internal/category"
	"github.com/michellemayes/logseq-assistant/internal/logging"
)

func newTestGmail(t *testing.T, handler http.Handler) *Gmail {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		t.Fatalf("gmail.NewService() error = %v", err)
	}
	return NewGmail(svc, logging.Discard())
}

func gmailMessageJSON(id string, labelIDs []string) string {
	html := base64.URLEncoding.EncodeToString([]byte("<p>Budget attached</p>"))
	labels, _ := json.Marshal(labelIDs)
	return fmt.Sprintf(`{"id":%q,"internalDate":"1792398600000","labelIds":%s,"payload":{
		"mimeType":"multipart/alternative",
		"headers":[
			{"name":"Subject","value":"Re: Budget"},
			{"name":"From","value":"Jane Doe <jane.doe@corp.com>"},
			{"name":"To","value":"Ann <ann@vendor.io>, bo@corp.com"}
		],
		"parts":[
			{"mimeType":"text/plain","body":{"data":%q}},
			{"mimeType":"text/html","body":{"data":%q}}
		]}}`, id, labels, base64.URLEncoding.EncodeToString([]byte("plain")), html)
}

func TestGmailFetchByCategory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"labels":[
			{"id":"INBOX","name":"INBOX","type":"system"},
			{"id":"Label_1","name":"AI Summarize","type":"user"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labelIds"); got != "Label_1" {
			t.Errorf("labelIds = %q", got)
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"g1"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/g1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(gmailMessageJSON("g1", []string{"INBOX", "Label_1"})))
	})

	g := newTestGmail(t, mux)
	msgs, err := g.FetchByCategory(context.Background(), "AI Summarize", 5)
	if err != nil {
		t.Fatalf("FetchByCategory() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Subject != "Re: Budget" || msg.From.Address != "jane.doe@corp.com" || msg.From.Name != "Jane Doe" {
		t.Fatalf("unexpected headers: %+v", msg)
	}
	if len(msg.To) != 2 || msg.To[1].Address != "bo@corp.com" {
		t.Fatalf("unexpected recipients: %+v", msg.To)
	}
	if msg.Body != "<p>Budget attached</p>" {
		t.Fatalf("Body = %q", msg.Body)
	}
	if !reflect.DeepEqual(msg.Categories.Values(), []string{"AI Summarize"}) {
		t.Fatalf("Categories = %v", msg.Categories.Values())
	}
	if msg.Received == "" {
		t.Fatal("expected received timestamp from internalDate")
	}
}

func TestGmailSetCategories(t *testing.T) {
	var modify gmail.ModifyMessageRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"Label_2","name":"AI Summarized","type":"user"}`))
			return
		}
		_, _ = w.Write([]byte(`{"labels":[
			{"id":"Label_1","name":"AI Summarize","type":"user"},
			{"id":"Label_9","name":"Blue","type":"user"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/g1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"g1","labelIds":["INBOX","UNREAD","Label_1","Label_9"]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/g1/modify", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&modify); err != nil {
			t.Errorf("decode modify: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"g1"}`))
	})

	g := newTestGmail(t, mux)
	next := category.Advance(category.NewSet("AI Summarize", "Blue"), "AI Summarize", "AI Summarized")
	if err := g.SetCategories(context.Background(), "g1", next); err != nil {
		t.Fatalf("SetCategories() error = %v", err)
	}

	sort.Strings(modify.AddLabelIds)
	sort.Strings(modify.RemoveLabelIds)
	if !reflect.DeepEqual(modify.AddLabelIds, []string{"Label_2", "Label_9"}) {
		t.Fatalf("AddLabelIds = %v", modify.AddLabelIds)
	}
	if !reflect.DeepEqual(modify.RemoveLabelIds, []string{"Label_1", "UNREAD"}) {
		t.Fatalf("RemoveLabelIds = %v", modify.RemoveLabelIds)
	}
}
