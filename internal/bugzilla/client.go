// Package bugzilla is a small Bugzilla REST client returning typed, normalized records.
package bugzilla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultURL is the tracker queried when none is configured.
const DefaultURL = "https://bugzilla.redhat.com"

var (
	// ErrNotFound is returned when the tracker has no bug with the requested ID.
	ErrNotFound = errors.New("bug not found")
	// ErrInvalidID is returned for an ID that is neither a bug number nor an alias.
	ErrInvalidID = errors.New("invalid bug id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidID reports whether id is a bug number or a Bugzilla alias.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// APIError is the error document Bugzilla returns alongside non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	IsError    bool   `json:"error"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bugzilla api status=%d", e.StatusCode)
	}
	return fmt.Sprintf("bugzilla api status=%d code=%d: %s", e.StatusCode, e.Code, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the Bugzilla REST API.
//
// Login, if used, must complete before the client is shared; afterwards the
// client is read-only and safe for concurrent use.
type Client struct {
	http     *resty.Client
	baseURL  string
	username string
	password string
	token    string
}

// NewClient creates a Bugzilla client. An API key, when given, is sent on every request.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		http.SetHeader("X-BUGZILLA-API-KEY", opts.APIKey)
	}

	return &Client{
		http:     http,
		baseURL:  baseURL,
		username: opts.Username,
		password: opts.Password,
	}
}

// BaseURL returns the tracker root URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCredentials reports whether a username and password were configured.
func (c *Client) HasCredentials() bool {
	return c.username != "" && c.password != ""
}

// Login exchanges the configured username and password for a session token.
func (c *Client) Login(ctx context.Context) error {
	if !c.HasCredentials() {
		return errors.New("bugzilla: no credentials configured")
	}

	var out struct {
		ID    int    `json:"id"`
		Token string `json:"token"`
	}
	if err := c.get(ctx, "/rest/login", "", map[string]string{
		"login":    c.username,
		"password": c.password,
	}, &out); err != nil {
		return fmt.Errorf("failed to log in to %s: %w", c.baseURL, err)
	}
	if out.Token == "" {
		return fmt.Errorf("failed to log in to %s: empty token", c.baseURL)
	}

	c.token = out.Token
	slog.Info("Logged in to Bugzilla", "url", c.baseURL, "username", c.username, "user_id", out.ID)
	return nil
}

// FetchRecord returns the current state of a bug, comments included.
func (c *Client) FetchRecord(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	var bugs struct {
		Bugs []bugWire `json:"bugs"`
	}
	if err := c.get(ctx, "/rest/bug/{id}", id, nil, &bugs); err != nil {
		return nil, fmt.Errorf("failed to get bug %s: %w", id, err)
	}
	if len(bugs.Bugs) == 0 {
		return nil, fmt.Errorf("bug %s: %w", id, ErrNotFound)
	}

	comments, err := c.fetchComments(ctx, id)
	if err != nil {
		return nil, err
	}

	return buildRecord(&bugs.Bugs[0], comments, c.baseURL), nil
}

func (c *Client) fetchComments(ctx context.Context, id string) ([]Comment, error) {
	var out struct {
		Bugs map[string]struct {
			Comments []commentWire `json:"comments"`
		} `json:"bugs"`
	}
	if err := c.get(ctx, "/rest/bug/{id}/comment", id, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get comments for bug %s: %w", id, err)
	}

	// Keyed by numeric ID even when the request used an alias; take the only entry.
	var wire []commentWire
	if bug, ok := out.Bugs[id]; ok {
		wire = bug.Comments
	} else {
		for _, bug := range out.Bugs {
			wire = bug.Comments
			break
		}
	}

	if wire == nil {
		return nil, nil
	}
	comments := make([]Comment, len(wire))
	for i, w := range wire {
		comments[i] = w.comment()
	}
	return comments, nil
}

// FetchHistory returns the change log of a bug in the order the tracker reports it.
func (c *Client) FetchHistory(ctx context.Context, id string) ([]HistoryEvent, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	var out struct {
		Bugs []struct {
			ID      int           `json:"id"`
			History []historyWire `json:"history"`
		} `json:"bugs"`
	}
	if err := c.get(ctx, "/rest/bug/{id}/history", id, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get history for bug %s: %w", id, err)
	}
	if len(out.Bugs) == 0 {
		return nil, fmt.Errorf("history for bug %s: %w", id, ErrNotFound)
	}

	wire := out.Bugs[0].History
	history := make([]HistoryEvent, len(wire))
	for i, w := range wire {
		history[i] = w.event()
	}
	return history, nil
}

// get issues a GET request. A non-empty id fills the {id} path parameter, escaped.
func (c *Client) get(ctx context.Context, path, id string, query map[string]string, result any) error {
	apiErr := &APIError{}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(result).
		SetError(apiErr)
	if id != "" {
		req.SetPathParam("id", id)
	}
	if c.token != "" {
		req.SetQueryParam("Bugzilla_token", c.token)
	}

	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if resp.StatusCode() == 404 || apiErr.Code == 101 {
			return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
		}
		return apiErr
	}
	return nil
}
