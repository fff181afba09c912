// Package session owns the lazily-created handle to the remote repository.
//
// A Gateway is created per widget; widgets in the same process share one
// Gateway by reference, isolated widgets each hold their own and stay
// consistent only through events.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"go.uber.org/zap"
)

// Config holds the connection parameters of one widget.
type Config struct {
	ServerURL string
	Username  string
	Password  string
	Token     *cmis.Token

	// Root folder resolution, in precedence order. Empty values fall
	// through to the repository default.
	InitObjectID string
	InitPath     string

	Timeout time.Duration
}

// Session is the live handle to a repository: a borrowed client plus the
// resolved descriptors.
type Session struct {
	client *cmis.Client
	repo   cmis.RepositoryInfo

	initObjectID string
	initPath     string

	mu   sync.Mutex
	root *cmis.Node
}

// Client returns the underlying repository client.
func (s *Session) Client() *cmis.Client { return s.client }

// Repository returns the discovered repository descriptor.
func (s *Session) Repository() cmis.RepositoryInfo { return s.repo }

// Root resolves and caches the root folder node: explicit object id first,
// then path, then the repository's default root.
func (s *Session) Root(ctx context.Context) (*cmis.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root != nil {
		return s.root, nil
	}

	var (
		node *cmis.Node
		err  error
	)
	switch {
	case s.initObjectID != "":
		node, err = s.client.GetObject(ctx, s.initObjectID)
	case s.initPath != "":
		node, err = s.client.GetObjectByPath(ctx, s.initPath)
	default:
		node, err = s.client.GetObject(ctx, s.repo.RootFolderID)
	}
	if err != nil {
		return nil, err
	}
	s.root = node
	return node, nil
}

// Gateway creates and caches the Session of one widget.
type Gateway struct {
	mu      sync.Mutex
	cfg     Config
	session *Session
}

// NewGateway creates a gateway for the given configuration.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

// Ensure returns the existing Session unchanged, or creates one: it checks
// preconditions without touching the network, applies token or credentials
// (token wins when both are present), and performs repository discovery.
// On discovery failure no Session is kept and the widget stays in its
// pre-session state.
func (g *Gateway) Ensure(ctx context.Context) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		return g.session, nil
	}

	if g.cfg.ServerURL == "" {
		return nil, &cmis.ConfigurationError{Reason: "server URL is not set"}
	}
	hasCredentials := g.cfg.Username != "" && g.cfg.Password != ""
	if !hasCredentials && g.cfg.Token == nil {
		return nil, &cmis.ConfigurationError{Reason: "neither credentials nor token are set"}
	}
	if g.cfg.Token != nil {
		if err := checkTokenExpiry(g.cfg.Token.Value); err != nil {
			return nil, err
		}
	}

	client := cmis.New(cmis.Config{ServerURL: g.cfg.ServerURL, Timeout: g.cfg.Timeout})
	if g.cfg.Token != nil {
		client.SetToken(*g.cfg.Token)
	} else {
		client.SetCredentials(g.cfg.Username, g.cfg.Password)
	}

	if err := client.LoadRepositories(ctx); err != nil {
		logging.Warn("repository discovery failed",
			zap.String("url", g.cfg.ServerURL), zap.Error(err))
		return nil, err
	}
	repo, err := client.DefaultRepository()
	if err != nil {
		return nil, err
	}

	g.session = &Session{
		client:       client,
		repo:         repo,
		initObjectID: g.cfg.InitObjectID,
		initPath:     g.cfg.InitPath,
	}
	logging.Info("session established",
		zap.String("repository", repo.ID),
		zap.String("url", g.cfg.ServerURL))
	return g.session, nil
}

// Current returns the Session if one exists, without creating it.
func (g *Gateway) Current() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// ApplyLogin absorbs the parameter of a login event: a JSON object is a
// token, anything else is "username:password".
func (g *Gateway) ApplyLogin(param string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token, ok := cmis.ParseToken(param); ok {
		g.cfg.Token = &token
		return
	}
	username, password, _ := strings.Cut(param, ":")
	g.cfg.Username = username
	g.cfg.Password = password
	g.cfg.Token = nil
}

// Reset drops the session and every authentication parameter (logout).
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = nil
	g.cfg.Username = ""
	g.cfg.Password = ""
	g.cfg.Token = nil
}

// checkTokenExpiry fails fast on bearer tokens that are parseable JWTs with
// an expiry in the past. Opaque tokens pass through untouched.
func checkTokenExpiry(value string) error {
	if strings.Count(value, ".") != 2 {
		return nil
	}
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(value, &claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(time.Now()) {
		return &cmis.ConfigurationError{Reason: "token is expired"}
	}
	return nil
}
