package cmis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func repoPayload(serverURL string, ids ...string) map[string]any {
	out := make(map[string]any)
	for _, id := range ids {
		out[id] = map[string]any{
			"repositoryId":   id,
			"repositoryName": id + " repository",
			"rootFolderId":   "root-" + id,
			"repositoryUrl":  serverURL + "/repo/" + id,
			"rootFolderUrl":  serverURL + "/repo/" + id + "/root",
		}
	}
	return out
}

func TestLoadRepositories_DefaultIsLexicallyFirst(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(repoPayload(ts.URL, "zeta", "alpha", "mid"))
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repo, err := c.DefaultRepository()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.ID != "alpha" {
		t.Errorf("expected default repository alpha, got %s", repo.ID)
	}
	if repo.RootFolderID != "root-alpha" {
		t.Errorf("expected root folder root-alpha, got %s", repo.RootFolderID)
	}
}

func TestLoadRepositories_FailureIsConnectionError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "empty repository map",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{})
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := New(Config{ServerURL: ts.URL})
			err := c.LoadRepositories(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if _, ok := AsConnection(err); !ok {
				t.Errorf("expected ConnectionError, got %T: %v", err, err)
			}
			if _, err := c.DefaultRepository(); err == nil {
				t.Error("expected no default repository after failed discovery")
			}
		})
	}
}

func TestGetObject_NotFound(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			json.NewEncoder(w).Encode(repoPayload(ts.URL, "r1"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.GetObject(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDo_ErrorMessageFromBody(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			json.NewEncoder(w).Encode(repoPayload(ts.URL, "r1"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"exception": "runtime",
			"message":   "boom",
		})
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.GetObject(context.Background(), "any")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected repository message in error, got %v", err)
	}
}

func TestDeleteTree_PartialFailure(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			json.NewEncoder(w).Encode(repoPayload(ts.URL, "r1"))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ids": []string{"d1", "d2"}})
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := c.DeleteTree(context.Background(), "f1")
	pe, ok := AsPartialDelete(err)
	if !ok {
		t.Fatalf("expected PartialDeleteError, got %v", err)
	}
	if got := pe.FailedList(); got != "d1; d2" {
		t.Errorf("expected failed list \"d1; d2\", got %q", got)
	}
}

func TestDeleteTree_EmptyBodyIsSuccess(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			json.NewEncoder(w).Encode(repoPayload(ts.URL, "r1"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.DeleteTree(context.Background(), "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuth_TokenInQueryBasicOtherwise(t *testing.T) {
	var gotAuth, gotTicket string
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTicket = r.URL.Query().Get("ticket")
		json.NewEncoder(w).Encode(repoPayload(ts.URL, "r1"))
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL}).SetCredentials("alice", "secret")
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth == "" {
		t.Error("expected basic auth header with credentials")
	}

	c.SetToken(Token{Name: "ticket", Value: "abc"})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTicket != "abc" {
		t.Errorf("expected token in query, got %q", gotTicket)
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Token
		ok   bool
	}{
		{
			name: "single entry",
			in:   `{"ticket":"abc"}`,
			want: Token{Name: "ticket", Value: "abc"},
			ok:   true,
		},
		{
			name: "lexically first key wins",
			in:   `{"z":"late","a":"first"}`,
			want: Token{Name: "a", Value: "first"},
			ok:   true,
		},
		{name: "not json", in: "alice:secret"},
		{name: "empty object", in: "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseToken(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseToken(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && (got.Name != tt.want.Name || got.Value != tt.want.Value) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestContentStreamURL_IncludesToken(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(repoPayload(ts.URL, "r1"))
	}))
	defer ts.Close()

	c := New(Config{ServerURL: ts.URL}).SetToken(Token{Name: "ticket", Value: "abc"})
	if err := c.LoadRepositories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := c.ContentStreamURL("doc-1", "attachment")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"objectId=doc-1", "cmisselector=content", "download=attachment", "ticket=abc"} {
		if !strings.Contains(u, want) {
			t.Errorf("url %q missing %q", u, want)
		}
	}
}
