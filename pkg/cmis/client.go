// Package cmis implements a client for the CMIS 1.1 browser binding.
//
// The client speaks JSON over HTTP: reads are GET requests selected with
// cmisselector, mutations are POST requests carrying a cmisaction form.
// Authentication is either basic (username/password) or a named token
// appended to every request as a query parameter.
package cmis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pavel-ixxus/chemistry-cmis/internal/metrics"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"go.uber.org/zap"
)

// Token is a named authentication token appended to request URLs.
type Token struct {
	Name  string
	Value string
}

// ParseToken decodes a token from its JSON object form {"name": "value"}.
// With several entries the lexically first name wins.
func ParseToken(s string) (Token, bool) {
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil || len(m) == 0 {
		return Token{}, false
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return Token{Name: names[0], Value: m[names[0]]}, true
}

// JSON renders the token back to its wire form.
func (t Token) JSON() string {
	b, _ := json.Marshal(map[string]string{t.Name: t.Value})
	return string(b)
}

// Config holds client configuration.
type Config struct {
	ServerURL string
	Timeout   time.Duration
}

// Client is an HTTP client for one CMIS server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	username string
	password string
	token    *Token
	repos    map[string]RepositoryInfo
	def      *RepositoryInfo
}

// New creates a new client. Repositories are not loaded until
// LoadRepositories is called.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: cfg.ServerURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// SetCredentials sets basic-auth credentials and clears any token.
func (c *Client) SetCredentials(username, password string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
	c.token = nil
	return c
}

// SetToken sets the auth token. A token takes precedence over credentials.
func (c *Client) SetToken(t Token) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &t
	return c
}

// Token returns the current token, or nil.
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Credentials returns the basic-auth credentials as "username:password".
func (c *Client) Credentials() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username + ":" + c.password
}

// LoadRepositories performs repository discovery against the server root.
// Discovery failure is a ConnectionError; the client keeps no partial state.
func (c *Client) LoadRepositories(ctx context.Context) error {
	var repos map[string]RepositoryInfo
	if err := c.getJSON(ctx, "loadRepositories", c.baseURL, nil, &repos); err != nil {
		return &ConnectionError{URL: c.baseURL, Err: err}
	}
	if len(repos) == 0 {
		return &ConnectionError{URL: c.baseURL, Err: fmt.Errorf("no repositories")}
	}

	ids := make([]string, 0, len(repos))
	for id := range repos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	def := repos[ids[0]]

	c.mu.Lock()
	c.repos = repos
	c.def = &def
	c.mu.Unlock()

	logging.Debug("repositories loaded",
		zap.Int("count", len(repos)),
		zap.String("default", def.ID))
	return nil
}

// DefaultRepository returns the resolved default repository descriptor.
func (c *Client) DefaultRepository() (RepositoryInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.def == nil {
		return RepositoryInfo{}, &ConfigurationError{Reason: "repositories not loaded"}
	}
	return *c.def, nil
}

// ContentStreamURL builds the content download URL for an object.
// disposition is "attachment" or "inline". The auth token, when set, is
// appended so the URL works outside this client.
func (c *Client) ContentStreamURL(objectID, disposition string) (string, error) {
	repo, err := c.DefaultRepository()
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("objectId", objectID)
	q.Set("cmisselector", "content")
	q.Set("download", disposition)
	if t := c.Token(); t != nil {
		q.Set(t.Name, t.Value)
	}
	return repo.RootFolderURL + "?" + q.Encode(), nil
}

// rootFolderURL returns the default repository's root folder endpoint.
func (c *Client) rootFolderURL() (string, error) {
	repo, err := c.DefaultRepository()
	if err != nil {
		return "", err
	}
	return repo.RootFolderURL, nil
}

// repositoryURL returns the default repository's service endpoint.
func (c *Client) repositoryURL() (string, error) {
	repo, err := c.DefaultRepository()
	if err != nil {
		return "", err
	}
	return repo.RepositoryURL, nil
}

// applyAuth attaches authentication to a request. A token is carried in the
// query string; credentials use basic auth.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != nil {
		q := req.URL.Query()
		q.Set(c.token.Name, c.token.Value)
		req.URL.RawQuery = q.Encode()
		return
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// getJSON issues a GET and decodes the JSON response body into out.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, query url.Values, out any) error {
	target := rawURL
	if len(query) > 0 {
		target = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

// postForm issues a POST of an urlencoded cmisaction form.
func (c *Client) postForm(ctx context.Context, op, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, req, out)
}

// do executes the request, records metrics, and maps failures onto the
// error taxonomy. out may be nil when the response body is irrelevant.
func (c *Client) do(op string, req *http.Request, out any) error {
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRepositoryCall(op, "transport_error", time.Since(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	metrics.RecordRepositoryCall(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Ref: req.URL.Query().Get("objectId")}
	}
	if resp.StatusCode >= 400 {
		var fail struct {
			Exception string `json:"exception"`
			Message   string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&fail)
		msg := fail.Message
		if msg == "" {
			msg = resp.Status
		}
		return &OperationError{Op: op, Message: msg}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &OperationError{Op: op, Message: "malformed response", Err: err}
	}
	return nil
}

// doRaw is do for callers that need the undecoded response body.
func (c *Client) doRaw(op string, req *http.Request, out *json.RawMessage) error {
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRepositoryCall(op, "transport_error", time.Since(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	metrics.RecordRepositoryCall(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Ref: req.URL.Query().Get("objectId")}
	}
	if resp.StatusCode >= 400 {
		var fail struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&fail)
		msg := fail.Message
		if msg == "" {
			msg = resp.Status
		}
		return &OperationError{Op: op, Message: msg}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &OperationError{Op: op, Message: "read response", Err: err}
	}
	*out = body
	return nil
}
