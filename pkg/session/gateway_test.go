package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavel-ixxus/chemistry-cmis/internal/repotest"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
)

func TestEnsure_MissingConfigurationMakesNoRequests(t *testing.T) {
	repo := repotest.New()
	defer repo.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no server URL", cfg: Config{Username: "alice", Password: "secret"}},
		{name: "no credentials", cfg: Config{ServerURL: repo.URL()}},
		{name: "password only", cfg: Config{ServerURL: repo.URL(), Password: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := repo.Requests()
			g := NewGateway(tt.cfg)
			_, err := g.Ensure(context.Background())
			if _, ok := cmis.AsConfiguration(err); !ok {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if got := repo.Requests(); got != before {
				t.Errorf("expected zero network calls, server saw %d", got-before)
			}
			if g.Current() != nil {
				t.Error("no session may exist after a configuration error")
			}
		})
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	repo := repotest.New()
	defer repo.Close()

	g := NewGateway(Config{ServerURL: repo.URL(), Username: "alice", Password: "secret"})
	first, err := g.Ensure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := repo.Requests()

	second, err := g.Ensure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Error("Ensure created a second session")
	}
	if repo.Requests() != after {
		t.Error("repeated Ensure issued network calls")
	}
	if g.Current() != first {
		t.Error("Current returned a different session")
	}
}

func TestEnsure_DiscoveryFailureKeepsNoSession(t *testing.T) {
	repo := repotest.New()
	defer repo.Close()
	repo.FailNext(500, 1)

	g := NewGateway(Config{ServerURL: repo.URL(), Username: "alice", Password: "secret"})
	if _, err := g.Ensure(context.Background()); err == nil {
		t.Fatal("expected discovery to fail")
	}
	if g.Current() != nil {
		t.Fatal("gateway kept a session after failed discovery")
	}

	// The next attempt starts clean and succeeds.
	if _, err := g.Ensure(context.Background()); err != nil {
		t.Fatalf("retry after failure errored: %v", err)
	}
}

func TestRoot_Precedence(t *testing.T) {
	repo := repotest.New()
	defer repo.Close()
	docs := repo.AddFolder(repotest.RootID, "docs")
	repo.AddFolder(docs, "reports")

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "repository root by default",
			cfg:  Config{ServerURL: repo.URL(), Username: "a", Password: "b"},
			want: repotest.RootID,
		},
		{
			name: "object id wins",
			cfg: Config{ServerURL: repo.URL(), Username: "a", Password: "b",
				InitObjectID: docs, InitPath: "/nonexistent"},
			want: docs,
		},
		{
			name: "path used when no object id",
			cfg: Config{ServerURL: repo.URL(), Username: "a", Password: "b",
				InitPath: "/docs"},
			want: docs,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(tt.cfg)
			sess, err := g.Ensure(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			root, err := sess.Root(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if root.ObjectID() != tt.want {
				t.Errorf("root = %s, want %s", root.ObjectID(), tt.want)
			}

			// Cached on second call.
			again, err := sess.Root(context.Background())
			if err != nil || again != root {
				t.Errorf("expected cached root, got %v, %v", again, err)
			}
		})
	}
}

func TestApplyLogin(t *testing.T) {
	g := NewGateway(Config{ServerURL: "http://server"})

	g.ApplyLogin("alice:secret")
	if g.cfg.Username != "alice" || g.cfg.Password != "secret" || g.cfg.Token != nil {
		t.Errorf("credentials not applied: %+v", g.cfg)
	}

	g.ApplyLogin(`{"ticket":"abc"}`)
	if g.cfg.Token == nil || g.cfg.Token.Name != "ticket" || g.cfg.Token.Value != "abc" {
		t.Errorf("token not applied: %+v", g.cfg.Token)
	}

	// Plain credentials clear a previously applied token.
	g.ApplyLogin("bob:hunter2")
	if g.cfg.Token != nil || g.cfg.Username != "bob" {
		t.Errorf("token should be cleared by credential login: %+v", g.cfg)
	}
}

func TestReset(t *testing.T) {
	repo := repotest.New()
	defer repo.Close()

	g := NewGateway(Config{ServerURL: repo.URL(), Username: "alice", Password: "secret"})
	if _, err := g.Ensure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g.Reset()
	if g.Current() != nil {
		t.Error("session survived Reset")
	}
	if _, err := g.Ensure(context.Background()); err == nil {
		t.Error("Ensure after Reset should fail without credentials")
	}
}

func TestCheckTokenExpiry(t *testing.T) {
	signed := func(exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": exp.Unix(),
		})
		s, err := tok.SignedString([]byte("test-key"))
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}
		return s
	}

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "opaque token", value: "not-a-jwt"},
		{name: "two dots but not a jwt", value: "a.b.c"},
		{name: "valid jwt", value: signed(time.Now().Add(time.Hour))},
		{name: "expired jwt", value: signed(time.Now().Add(-time.Hour)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTokenExpiry(tt.value)
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnsure_ExpiredTokenFailsFast(t *testing.T) {
	repo := repotest.New()
	defer repo.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	before := repo.Requests()
	g := NewGateway(Config{
		ServerURL: repo.URL(),
		Token:     &cmis.Token{Name: "ticket", Value: s},
	})
	if _, err := g.Ensure(context.Background()); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if repo.Requests() != before {
		t.Error("expired token check must not touch the network")
	}
}
