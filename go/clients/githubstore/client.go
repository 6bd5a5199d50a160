// Package githubstore talks to a GitHub-repository-shaped versioned blob
// store over its contents API. Each document is one file; the file's blob
// SHA is the opaque version token for optimistic concurrency.
package githubstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAPIBase = "https://api.github.com"

// Config identifies the target repository and credential.
type Config struct {
	APIBase string // defaults to the public GitHub API
	Repo    string // "owner/name"
	Token   string
	Timeout time.Duration
}

// Client reads and writes versioned documents. Safe for concurrent use.
type Client struct {
	apiBase string
	repo    string
	token   string
	httpc   *http.Client
}

// New validates the configuration and builds a client. A missing token is
// ErrNoCredential: the caller logs it once at startup and runs without
// persistence.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrNoCredential
	}
	if cfg.Repo == "" {
		return nil, fmt.Errorf("store repository not configured")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		repo:    cfg.Repo,
		token:   cfg.Token,
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.apiBase, c.repo, path)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.contentsURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

// Get fetches a document and its version token. ErrNotFound for documents
// that do not exist yet.
func (c *Client) Get(ctx context.Context, path string) (content []byte, version string, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", fmt.Errorf("get %s: %w", path, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, body)
	}

	var meta struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("get %s: decode response: %w", path, err)
	}

	// The contents API wraps base64 at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(meta.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("get %s: decode content: %w", path, err)
	}
	return decoded, meta.SHA, nil
}

// Put writes the full document body under the given version token. An empty
// token creates the document. ErrConflict when the token is stale.
func (c *Client) Put(ctx context.Context, path string, content []byte, version string, message string) error {
	payload := struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha,omitempty"`
	}{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     version,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("put %s: encode request: %w", path, err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		log.Debug().Str("path", path).Int("bytes", len(content)).Msg("document written")
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("put %s: %w", path, ErrConflict)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("put %s: %w", path, ErrUnauthorized)
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("put %s: status %d: %s", path, resp.StatusCode, respBody)
	}
}
