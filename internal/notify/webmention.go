package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/policy"
)

// ErrNoEndpoint means the target advertises no webmention endpoint.
var ErrNoEndpoint = errors.New("no webmention endpoint")

// WebmentionSender discovers the target's webmention endpoint and posts the
// source and target to it.
type WebmentionSender struct {
	fetcher   indieweb.Fetcher
	client    *http.Client
	userAgent string
}

// NewWebmentionSender builds a sender. Discovery goes through fetcher; the
// POST goes through client, or http.DefaultClient when nil.
func NewWebmentionSender(fetcher indieweb.Fetcher, client *http.Client, userAgent string) *WebmentionSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebmentionSender{fetcher: fetcher, client: client, userAgent: userAgent}
}

// Send implements Sender.
func (s *WebmentionSender) Send(ctx context.Context, job Job) error {
	endpoint, err := s.Discover(ctx, job.Target)
	if err != nil {
		return err
	}
	return s.post(ctx, endpoint, job)
}

// Discover returns the absolute webmention endpoint of target. A Link header
// wins over markup; within markup the first link or a element in document
// order wins.
func (s *WebmentionSender) Discover(ctx context.Context, target string) (string, error) {
	resp, err := s.fetcher.Fetch(ctx, indieweb.FetchRequest{
		URL:     target,
		Headers: http.Header{"Accept": {"text/html"}},
	})
	if err != nil {
		err = fmt.Errorf("discover endpoint for %s: %w", target, err)
		if errors.Is(err, policy.ErrBlocked) {
			return "", Permanent(err)
		}
		return "", err
	}
	pageURL := resp.URL
	if pageURL == "" {
		pageURL = target
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", Permanent(fmt.Errorf("parse target url: %w", err))
	}

	href, found := endpointFromLinkHeader(resp.Headers.Values("Link"))
	if !found {
		href, found, err = endpointFromHTML(resp.Body)
		if err != nil {
			return "", Permanent(err)
		}
	}
	if !found {
		return "", Permanent(fmt.Errorf("%w at %s", ErrNoEndpoint, target))
	}

	// An empty href refers to the page itself.
	endpoint, err := base.Parse(href)
	if err != nil {
		return "", Permanent(fmt.Errorf("parse endpoint %q: %w", href, err))
	}
	return endpoint.String(), nil
}

func (s *WebmentionSender) post(ctx context.Context, endpoint string, job Job) error {
	form := url.Values{"source": {job.Source}, "target": {job.Target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Permanent(fmt.Errorf("build webmention request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webmention to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return Permanent(fmt.Errorf("webmention endpoint %s rejected: status %d", endpoint, resp.StatusCode))
	default:
		return fmt.Errorf("webmention endpoint %s: status %d", endpoint, resp.StatusCode)
	}
}

// endpointFromLinkHeader scans Link header values such as
// `<https://example.com/wm>; rel="webmention"`.
func endpointFromLinkHeader(values []string) (string, bool) {
	for _, value := range values {
		for _, link := range strings.Split(value, ",") {
			parts := strings.Split(link, ";")
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range parts[1:] {
				key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(val), `"`)) {
					if strings.EqualFold(rel, "webmention") {
						return target[1 : len(target)-1], true
					}
				}
			}
		}
	}
	return "", false
}

func endpointFromHTML(body []byte) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("parse target html: %w", err)
	}
	sel := doc.Find(`link[rel~="webmention"][href], a[rel~="webmention"][href]`).First()
	if sel.Length() == 0 {
		return "", false, nil
	}
	href, _ := sel.Attr("href")
	return href, true, nil
}
