package crawler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/linkcrawler/internal/services"
	"github.com/JakeFAU/linkcrawler/internal/storage"
)

// Link is one crawlable address. Address never changes after NewLink; HTML and
// Links are filled in by Fetch and Extract.
type Link struct {
	Address string
	HTML    string
	Links   []string
}

// NewLink wraps an already normalized absolute address.
func NewLink(address string) *Link {
	return &Link{Address: address}
}

// Fetch issues a GET for the link's address through the shared collector and
// returns the body decoded as UTF-8 text. Every failure is a *FetchError.
func (l *Link) Fetch(ctx context.Context, svc *services.Services) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FetchError{Kind: FetchNetwork, URL: l.Address, Err: err}
	}
	collector := svc.Collector.Clone()
	collector.Context = ctx

	var (
		resp     *colly.Response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		resp = r
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(l.Address)
	}()

	// Visit aborts its request once ctx is done; the late result is dropped.
	select {
	case <-ctx.Done():
		return "", &FetchError{Kind: FetchNetwork, URL: l.Address, Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return "", &FetchError{Kind: FetchNetwork, URL: l.Address, Err: err}
		}
	}
	if resp == nil {
		return "", &FetchError{Kind: FetchNetwork, URL: l.Address, Err: errors.New("no response")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{Kind: FetchStatus, URL: l.Address, StatusCode: resp.StatusCode}
	}

	contentType := ""
	if resp.Headers != nil {
		contentType = resp.Headers.Get("Content-Type")
	}
	text, err := decodeText(resp.Body, contentType)
	if err != nil {
		return "", &FetchError{Kind: FetchDecode, URL: l.Address, Err: err}
	}
	l.HTML = text
	return text, nil
}

// decodeText converts body to UTF-8. The collector already transcodes bodies
// whose Content-Type declares a charset, so valid UTF-8 is taken as is and
// anything else is decoded with the sniffed encoding.
func decodeText(body []byte, contentType string) (string, error) {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return "", fmt.Errorf("parse content type %q: %w", contentType, err)
		}
		if !isTextual(mediaType) {
			return "", fmt.Errorf("content type %q is not text", mediaType)
		}
	}
	if utf8.Valid(body) {
		return string(body), nil
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return "", errors.New("body is not valid utf-8")
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("decode %s body: invalid output", name)
	}
	return string(decoded), nil
}

func isTextual(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		strings.HasSuffix(mediaType, "+xml") ||
		mediaType == "application/xml" ||
		mediaType == "application/xhtml+xml"
}

// Extract returns the absolute https URLs of every a[href] on the page, in
// document order, each at most once. Returned addresses are normalized (see
// NormalizeURL), so https://y.com comes back as https://y.com/. Hrefs are resolved against the link's own
// address; ones that cannot be parsed or resolved are skipped.
func (l *Link) Extract(html string) []string {
	base, err := url.Parse(l.Address)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !strings.EqualFold(abs.Scheme, "https") || abs.Host == "" {
			return
		}
		address := normalize(abs)
		if _, dup := seen[address]; dup {
			return
		}
		seen[address] = struct{}{}
		links = append(links, address)
	})
	l.Links = links
	return links
}

// Persist writes the address to the shared store. Every failure is a
// *PersistError; PersistConflict means the row already exists.
func (l *Link) Persist(ctx context.Context, svc *services.Services) error {
	err := svc.Store.InsertURL(ctx, l.Address)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrDuplicate):
		return &PersistError{Kind: PersistConflict, URL: l.Address, Err: err}
	case errors.Is(err, storage.ErrUnavailable):
		return &PersistError{Kind: PersistConnection, URL: l.Address, Err: err}
	default:
		return &PersistError{Kind: PersistQuery, URL: l.Address, Err: err}
	}
}
