// Package apiclient is the bots' client for the support-desk HTTP API. It
// speaks the JSON contract served by internal/http, identifies the calling
// bot with X-Client-Name, and turns error envelopes into *APIError.
//
// The client also satisfies dispatch.IssueLookup and notify.AdminDirectory,
// so the notification pipeline can run in a bot process that has no store
// access of its own.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// Stable error codes returned by the API.
const (
	CodeNotFound         = "not_found"
	CodeBadRequest       = "bad_request"
	CodeIssueClosed      = "issue_closed"
	CodeAlreadyManual    = "already_manual"
	CodeNotOpen          = "not_open"
	CodeIssueExists      = "issue_exists"
	CodeAdminExists      = "admin_exists"
	CodeReservedUsername = "reserved_username"
	CodeResponderFailed  = "responder_failed"
	CodeTooManyRequests  = "too_many_requests"
)

// Headers understood by the API.
const (
	HeaderClientName     = "X-Client-Name"
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotency-Replayed"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// HasCode reports whether err is an *APIError carrying code.
func HasCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// Client calls the API at a fixed base URL.
type Client struct {
	base    string
	name    string
	hc      *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithTimeout bounds each call, retries included.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRetries sets how many times a safe call is retried after a transport
// error, a 429 or a 5xx other than responder_failed.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) { c.retries, c.backoff = n, backoff }
}

// New returns a client for baseURL (e.g. "http://api:8080/api") that
// identifies itself as clientName.
func New(baseURL, clientName string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		name:    clientName,
		hc:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: 10 * time.Second,
		retries: 2,
		backoff: 200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MessageResult is the answer to a user message post.
type MessageResult struct {
	Message  *domain.Message `json:"message"`
	Reply    *domain.Message `json:"reply"`
	Replayed bool            `json:"-"`
}

// ---- public namespace ----

// GetActiveIssue returns the chat's open or manual issue. A chat without
// one yields an error for which IsNotFound is true.
func (c *Client) GetActiveIssue(ctx context.Context, chatID string) (*domain.Issue, error) {
	var out domain.Issue
	_, err := c.do(ctx, http.MethodGet, "/public/issues/"+url.PathEscape(chatID), nil, nil, &out)
	return ptrOrNil(&out, err)
}

// CreateIssue opens an issue for the requester.
func (c *Client) CreateIssue(ctx context.Context, chatID, username string) (*domain.Issue, error) {
	var out domain.Issue
	body := map[string]string{"chat_id": chatID, "username": username}
	_, err := c.do(ctx, http.MethodPost, "/public/issues", body, nil, &out)
	return ptrOrNil(&out, err)
}

// PostUserMessage sends a requester message. idemKey, when set, makes the
// call safe to retry.
func (c *Client) PostUserMessage(ctx context.Context, issueID, text, idemKey string) (*MessageResult, error) {
	var out MessageResult
	hdr := http.Header{}
	if idemKey != "" {
		hdr.Set(HeaderIdempotencyKey, idemKey)
	}
	resp, err := c.do(ctx, http.MethodPost, issuePath("public", issueID, "messages"), map[string]string{"message": text}, hdr, &out)
	if err != nil {
		return nil, err
	}
	out.Replayed = resp.Get(headerReplayed) == "true"
	return &out, nil
}

// Escalate moves the issue to manual mode.
func (c *Client) Escalate(ctx context.Context, issueID string) (*domain.Issue, error) {
	var out domain.Issue
	_, err := c.do(ctx, http.MethodPut, issuePath("public", issueID, "manual"), nil, nil, &out)
	return ptrOrNil(&out, err)
}

// CloseIssue closes the issue.
func (c *Client) CloseIssue(ctx context.Context, issueID string) (*domain.Issue, error) {
	var out domain.Issue
	_, err := c.do(ctx, http.MethodPost, issuePath("public", issueID, "close"), nil, nil, &out)
	return ptrOrNil(&out, err)
}

// ---- private namespace ----

// RegisterAdmin adds chatID to the admin allow-list.
func (c *Client) RegisterAdmin(ctx context.Context, chatID, username string) (*domain.Admin, error) {
	var out domain.Admin
	body := map[string]string{"chat_id": chatID, "username": username}
	_, err := c.do(ctx, http.MethodPost, "/private/admins", body, nil, &out)
	return ptrOrNil(&out, err)
}

// ListAdmins returns the registered admins.
func (c *Client) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	var out []domain.Admin
	_, err := c.do(ctx, http.MethodGet, "/private/admins", nil, nil, &out)
	return out, err
}

// ListManualIssues returns the issues waiting for a human.
func (c *Client) ListManualIssues(ctx context.Context) ([]domain.Issue, error) {
	var out []domain.Issue
	_, err := c.do(ctx, http.MethodGet, "/private/issues/manual", nil, nil, &out)
	return out, err
}

// GetIssue returns one issue.
func (c *Client) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
	var out domain.Issue
	_, err := c.do(ctx, http.MethodGet, issuePath("private", id, ""), nil, nil, &out)
	return ptrOrNil(&out, err)
}

// ListMessages returns the issue thread in timestamp order.
func (c *Client) ListMessages(ctx context.Context, issueID string) ([]domain.Message, error) {
	var out []domain.Message
	_, err := c.do(ctx, http.MethodGet, issuePath("private", issueID, "messages"), nil, nil, &out)
	return out, err
}

// PostAdminMessage replies to the issue as Admin.
func (c *Client) PostAdminMessage(ctx context.Context, issueID, text string) (*domain.Message, error) {
	var out domain.Message
	_, err := c.do(ctx, http.MethodPost, issuePath("private", issueID, "messages"), map[string]string{"message": text}, nil, &out)
	return ptrOrNil(&out, err)
}

// ---- transport ----

func issuePath(ns, id, tail string) string {
	p := "/" + ns + "/issues/" + url.PathEscape(id)
	if tail != "" {
		p += "/" + tail
	}
	return p
}

func ptrOrNil[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// do performs one logical call and decodes a 2xx body into out. Safe calls
// (GET, or any call with an Idempotency-Key) are retried.
func (c *Client) do(ctx context.Context, method, path string, body any, hdr http.Header, out any) (http.Header, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = b
	}

	safe := method == http.MethodGet || hdr.Get(HeaderIdempotencyKey) != ""
	tries := uint(1)
	if safe && c.retries > 0 {
		tries += uint(c.retries)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxInterval = 2 * time.Second

	h, err := backoff.Retry(ctx, func() (http.Header, error) {
		h, err := c.once(ctx, method, path, payload, hdr, out)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return h, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return h, err
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, hdr http.Header, out any) (http.Header, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.name != "" {
		req.Header.Set(HeaderClientName, c.name)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, ae) != nil || ae.Code == "" {
			ae.Message = strings.TrimSpace(string(raw))
		}
		return nil, ae
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("api: decode %s %s: %w", method, path, err)
		}
	}
	return resp.Header, nil
}

// retryable reports transport failures, throttling and server errors. A
// responder failure is final: the message is already stored.
func retryable(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if ae.Code == CodeResponderFailed {
		return false
	}
	return ae.Status == http.StatusTooManyRequests || ae.Status >= 500
}
