// Package fetch downloads a job posting and reduces it to plain text for the intake.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; CandidateResearch/1.0)"

// DefaultMaxBytes caps the downloaded page size
const DefaultMaxBytes = 5 << 20

// Posting is a fetched job posting
type Posting struct {
	URL         string
	Platform    Platform
	Text        string
	ContentType string
	StatusCode  int
	Rendered    bool // Text came from the headless browser
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Transport http.RoundTripper // Defaults to a transport without keep-alives

	// Browser re-renders pages whose HTTP text is shorter than MinContentLength
	Browser bool
	Render  Renderer // Defaults to WithBrowser
	Logger  *zap.Logger
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		MaxBytes:  DefaultMaxBytes,
	}
}

// JobPosting downloads urlStr and extracts the job description text using
// selectors for the detected job board.
func JobPosting(ctx context.Context, urlStr string, opts *Options) (*Posting, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	transport := opts.Transport
	if transport == nil {
		// One request per posting; idle connections would only linger
		transport = &http.Transport{Proxy: http.ProxyFromEnvironment, DisableKeepAlives: true}
	}
	client := &http.Client{Timeout: opts.Timeout, Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	posting := &Posting{
		URL:         urlStr,
		Platform:    DetectPlatform(urlStr),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.StatusCode != http.StatusOK {
		return posting, &Error{URL: urlStr, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	limit := opts.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return posting, &Error{URL: urlStr, Message: "failed to read response body", Cause: err}
	}
	if int64(len(body)) > limit {
		return posting, &Error{URL: urlStr, Message: fmt.Sprintf("page exceeds %d bytes", limit)}
	}

	if mediaType, _, _ := mime.ParseMediaType(posting.ContentType); mediaType == "text/plain" {
		posting.Text = cleanWhitespace(string(body))
	} else {
		posting.Text, err = ExtractMainText(string(body),
			PlatformContentSelectors(posting.Platform),
			PlatformNoiseSelectors(posting.Platform)...)
		if err != nil {
			return posting, &Error{URL: urlStr, Message: "failed to extract text", Cause: err}
		}

		if opts.Browser && ShouldUseBrowser(posting.Text) {
			if err := renderPosting(ctx, posting, opts); err != nil && posting.Text == "" {
				return posting, err
			}
		}
	}

	if posting.Text == "" {
		return posting, &Error{URL: urlStr, Message: "no job description found on page"}
	}
	return posting, nil
}

// renderPosting replaces the posting text with the browser-rendered text when
// that is longer. A failed render leaves the HTTP text in place.
func renderPosting(ctx context.Context, posting *Posting, opts *Options) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	render := opts.Render
	if render == nil {
		render = WithBrowser
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log.Debug("Rendering job posting in browser",
		zap.String("url", posting.URL),
		zap.Int("http_text_length", len(posting.Text)))

	html, err := render(ctx, posting.URL, timeout)
	if err != nil {
		log.Warn("Browser rendering failed", zap.String("url", posting.URL), zap.Error(err))
		return &Error{URL: posting.URL, Message: "browser rendering failed", Cause: err}
	}

	text, err := ExtractMainText(html,
		PlatformContentSelectors(posting.Platform),
		PlatformNoiseSelectors(posting.Platform)...)
	if err != nil {
		return &Error{URL: posting.URL, Message: "failed to extract rendered text", Cause: err}
	}

	log.Debug("Rendered job posting", zap.Int("html_bytes", len(html)), zap.Int("text_length", len(text)))
	if len(text) > len(posting.Text) {
		posting.Text = text
		posting.Rendered = true
	}
	return nil
}

// ExtractMainText parses HTML and returns the text of the first element matching
// contentSelectors, falling back to the body. Page chrome and noiseSelectors are
// removed first.
func ExtractMainText(html string, contentSelectors []string, noiseSelectors ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, .ad, .advertisement, .sidebar, .cookie-banner, .popup").Remove()
	if len(noiseSelectors) > 0 {
		doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
	}

	var content *goquery.Selection
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	// Keep block boundaries as line breaks
	content.Find("br").ReplaceWithHtml("\n")
	content.Find("p, li, h1, h2, h3, h4, div, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return cleanWhitespace(content.Text()), nil
}

// cleanWhitespace trims every line and drops the empty ones
func cleanWhitespace(text string) string {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
