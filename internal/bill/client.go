package bill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the bills API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bills API error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrTransition:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// Client implements ScopedStore against a remote bills API
type Client struct {
	baseURL  string
	client   *http.Client
	username string
	password string
	email    string
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithBasicAuth sends credentials on every request
func WithBasicAuth(username, password string) ClientOption {
	return func(cl *Client) {
		cl.username = username
		cl.password = password
	}
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bills implements Store
func (c *Client) Bills() BillsResource {
	return c
}

// ForEmail implements ScopedStore
func (c *Client) ForEmail(email string) Store {
	scoped := *c
	scoped.email = email
	return &scoped
}

// List fetches GET /bills
func (c *Client) List(ctx context.Context) ([]Bill, error) {
	endpoint := c.baseURL + "/bills"
	if c.email != "" {
		endpoint += "?" + url.Values{"email": {c.email}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var bills []Bill
	if err := c.do(req, &bills); err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	if bills == nil {
		bills = []Bill{}
	}
	return bills, nil
}

// Create posts the receipt as multipart form data to POST /bills
func (c *Client) Create(ctx context.Context, r CreateRequest) (*CreateResult, error) {
	email := r.Email
	if email == "" {
		email = c.email
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("email", email); err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, r.FileName))
	if r.ContentType != "" {
		header.Set("Content-Type", r.ContentType)
	}
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}
	if _, err := part.Write(r.Data); err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bills", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var result CreateResult
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("creating bill: %w", err)
	}
	return &result, nil
}

// Update sends the JSON bill to PATCH /bills/{selector}
func (c *Client) Update(ctx context.Context, r UpdateRequest) error {
	if r.Selector == "" {
		return fmt.Errorf("updating bill: empty selector")
	}

	endpoint := c.baseURL + "/bills/" + url.PathEscape(r.Selector)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, strings.NewReader(r.Data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("updating bill %s: %w", r.Selector, err)
	}
	return nil
}

// do sends req and decodes a JSON answer into out when out is non-nil
func (c *Client) do(req *http.Request, out any) error {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling bills API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorMessage reads {"error": "..."} bodies and falls back to the raw text
func errorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
