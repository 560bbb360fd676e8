// Package explorador fetches daily mean streamflow exports from the CR2
// explorador service. The service answers a single query endpoint with
// either the export bytes directly, a JSON envelope pointing at a download
// URL, or an HTML error page; the client normalizes all three into one raw
// payload per fetch.
//
// Requests need a browser-like header profile; bare requests are rejected.
package explorador

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

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultBaseURL is the production explorador endpoint.
	DefaultBaseURL = "https://explorador.cr2.cl"

	// DefaultUserAgent is the user agent string used for HTTP requests.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	defaultQueryTimeout    = 60 * time.Second
	defaultDownloadTimeout = 120 * time.Second
)

// --- Errors ---

// ErrUpstreamRejected is returned when the service answers with an HTML
// error page, or with an export envelope that carries no download URL.
var ErrUpstreamRejected = errors.New("upstream rejected the request")

// ErrTimeout is returned when a request exceeds the client timeout.
var ErrTimeout = errors.New("request timed out")

// StatusError reports a non-200 response on either hop.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// --- Request/response types ---

// Query identifies one station and date window to export.
type Query struct {
	StationID string
	Start     time.Time
	End       time.Time
}

// RawPayload is the downloaded export: opaque bytes plus the declared
// content type, kept only as a hint. Consumed exactly once by the resolver.
type RawPayload struct {
	Data        []byte
	ContentType string
}

// requestOptions is the JSON query the service expects, URL-encoded into
// the options parameter of request.php.
type requestOptions struct {
	Variable struct {
		ID      string `json:"id"`
		Var     string `json:"var"`
		Intv    string `json:"intv"`
		Season  string `json:"season"`
		Stat    string `json:"stat"`
		MinFrac int    `json:"minFrac"`
	} `json:"variable"`
	Time struct {
		Start  int64 `json:"start"`
		End    int64 `json:"end"`
		Months []int `json:"months"`
	} `json:"time"`
	Series struct {
		Sites []string `json:"sites"`
		Start *int64   `json:"start"`
		End   *int64   `json:"end"`
	} `json:"series"`
	Export struct {
		Series string `json:"series"`
	} `json:"export"`
	Action []string `json:"action"`
}

// exportEnvelope is the indirection answer: a link to the real file. The
// series URL appears either as {"url": ...} or as a bare string; the map
// export is a degraded spatial fallback.
type exportEnvelope struct {
	Export struct {
		Series json.RawMessage `json:"series"`
		Map    json.RawMessage `json:"map"`
	} `json:"export"`
}

// Client issues export requests against one explorador endpoint. The two
// hops carry separate timeouts: the query endpoint answers quickly, the
// file download on the second hop can take much longer.
type Client struct {
	http            *http.Client
	baseURL         string
	queryTimeout    time.Duration
	downloadTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the query request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.queryTimeout = d }
}

// WithDownloadTimeout overrides the export file download timeout.
func WithDownloadTimeout(d time.Duration) Option {
	return func(c *Client) { c.downloadTimeout = d }
}

// NewClient creates a client against the production endpoint.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:            &http.Client{},
		baseURL:         DefaultBaseURL,
		queryTimeout:    defaultQueryTimeout,
		downloadTimeout: defaultDownloadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestURL builds the full request.php URL for a query. Exposed so the
// pipeline can log the exact request it is about to issue.
func (c *Client) RequestURL(q Query) (string, error) {
	var opts requestOptions
	opts.Variable.ID = "qflxDaily"
	opts.Variable.Var = "caudal"
	opts.Variable.Intv = "daily"
	opts.Variable.Season = "year"
	opts.Variable.Stat = "mean"
	opts.Variable.MinFrac = 80
	opts.Time.Start = q.Start.Unix()
	opts.Time.End = q.End.Unix()
	opts.Time.Months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	opts.Series.Sites = []string{q.StationID}
	opts.Export.Series = "CSV"
	opts.Action = []string{"export"}

	encoded, err := json.Marshal(&opts)
	if err != nil {
		return "", fmt.Errorf("encode request options: %w", err)
	}
	return c.baseURL + "/request.php?options=" + url.QueryEscape(string(encoded)), nil
}

// Fetch runs one export request, following at most one envelope indirection,
// and returns the downloaded payload. A single attempt: retrying is the
// caller's decision, by re-running the whole pipeline.
func (c *Client) Fetch(ctx context.Context, q Query) (*RawPayload, error) {
	reqURL, err := c.RequestURL(q)
	if err != nil {
		return nil, err
	}

	body, contentType, err := c.get(ctx, reqURL, c.queryTimeout)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	switch {
	case looksLikeHTML(trimmed, contentType):
		return nil, fmt.Errorf("%w: %s", ErrUpstreamRejected, htmlErrorDetail(body))
	case len(trimmed) > 0 && trimmed[0] == '{':
		downloadURL, err := envelopeURL(body)
		if err != nil {
			return nil, err
		}
		body, contentType, err = c.get(ctx, downloadURL, c.downloadTimeout)
		if err != nil {
			return nil, err
		}
		return &RawPayload{Data: body, ContentType: contentType}, nil
	}

	// Direct payload bytes in the first response.
	return &RawPayload{Data: body, ContentType: contentType}, nil
}

// get performs one GET with the browser header profile.
func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, "", fmt.Errorf("%w: GET %s: %v", ErrTimeout, rawURL, err)
		}
		return nil, "", fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, "", fmt.Errorf("%w: read %s: %v", ErrTimeout, rawURL, err)
		}
		return nil, "", fmt.Errorf("read response from %s: %w", rawURL, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// envelopeURL extracts the download URL from an export envelope, preferring
// the series export and only falling back to the spatial map export.
func envelopeURL(body []byte) (string, error) {
	var env exportEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: unreadable export envelope: %v", ErrUpstreamRejected, err)
	}
	if u := rawURL(env.Export.Series); u != "" {
		return u, nil
	}
	if u := rawURL(env.Export.Map); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("%w: export envelope carries no download URL", ErrUpstreamRejected)
}

// rawURL reads a URL that may appear as {"url": "..."} or as a bare string.
func rawURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return obj.URL
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func looksLikeHTML(trimmed []byte, contentType string) bool {
	lower := bytes.ToLower(trimmed)
	if bytes.HasPrefix(lower, []byte("<!doctype html")) ||
		bytes.HasPrefix(lower, []byte("<html")) {
		return true
	}
	// The service labels CSV exports text/html, so the header alone is not
	// trusted; markup at the start of the body settles it. This catches
	// error pages that open with a comment or a bare tag.
	return strings.Contains(strings.ToLower(contentType), "text/html") &&
		len(lower) > 0 && lower[0] == '<'
}

// htmlErrorDetail pulls a short human-readable message out of an HTML error
// page: the title when present, otherwise the first line of visible text.
func htmlErrorDetail(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "HTML error page"
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	text := strings.TrimSpace(doc.Find("body").Text())
	if i := strings.IndexByte(text, '\n'); i > 0 {
		text = text[:i]
	}
	if text == "" {
		return "HTML error page"
	}
	return text
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
