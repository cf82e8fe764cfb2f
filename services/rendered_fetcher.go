package services

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/aotpy/username-checker-backend/shared"
)

// RenderedFetcher loads a page through headless Chrome. It exists for the
// rare case where the plain fetch gets bot-walled with a 403; a real browser
// session usually passes the same check.
type RenderedFetcher struct {
	timeout time.Duration
}

// NewRenderedFetcher creates a headless-browser fetcher.
func NewRenderedFetcher(timeout time.Duration) *RenderedFetcher {
	return &RenderedFetcher{timeout: timeout}
}

// FetchPage navigates to the URL and returns the rendered document HTML.
func (f *RenderedFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "RenderedFetcher",
		"method":    "FetchPage",
		"url":       pageURL,
	})
	logger.Debug("Starting rendered page fetch")

	options := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-images", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(shared.DefaultUserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, options...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	var pageHTML string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &pageHTML),
	)
	if err != nil {
		logger.WithError(err).Warn("Rendered fetch failed")
		return "", err
	}

	logger.WithField("html_length", len(pageHTML)).Debug("Rendered page fetch complete")
	return pageHTML, nil
}
