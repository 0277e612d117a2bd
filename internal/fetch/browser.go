package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the shortest plain-HTTP extraction accepted as-is when
// browser rendering is enabled. Shorter text usually means a JavaScript board.
const MinContentLength = 500

// Renderer returns the HTML of a page after its scripts have run
type Renderer func(ctx context.Context, url string, timeout time.Duration) (string, error)

// ShouldUseBrowser reports whether the text extracted over plain HTTP is too
// short to be the full posting.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// dismissCookieBanner clicks an accept button if one is present. It never
// waits for the button to appear.
const dismissCookieBanner = `(() => {
	const b = document.querySelector('button[id*="accept"], button[class*="accept"]');
	if (b) { b.click(); return true; }
	return false;
})()`

// WithBrowser renders url in headless Chrome and returns the resulting HTML.
// Chrome or Chromium must be installed.
func WithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var (
		html      string
		dismissed bool
	)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Boards render the posting after load
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(dismissCookieBanner, &dismissed),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	return html, nil
}
