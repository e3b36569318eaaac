package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// InlineOptions controls how resources are inlined into captured HTML.
type InlineOptions struct {
	// BaseURL resolves relative references.
	BaseURL string
	// Timeout is the per-resource fetch timeout.
	Timeout time.Duration
	// MaxResourceSize truncates a resource body. Zero means no limit.
	MaxResourceSize int64
	InlineImages    bool
	InlineCSS       bool
	InlineJS        bool
	// AllowInternal permits fetching loopback, private and link-local hosts.
	AllowInternal bool
	Logger        *slog.Logger
}

func DefaultInlineOptions(baseURL string) InlineOptions {
	return InlineOptions{
		BaseURL:         baseURL,
		Timeout:         DefaultResourceTimeout,
		MaxResourceSize: MaxResourceSize,
		InlineImages:    true,
		InlineCSS:       true,
		InlineJS:        true,
	}
}

// errBlockedURL is returned for resources on internal hosts.
var errBlockedURL = errors.New("blocked internal URL")

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

// fetched is a downloaded resource.
type fetched struct {
	data        []byte
	contentType string
}

type fetcher struct {
	client        *http.Client
	maxSize       int64
	allowInternal bool
	logger        *slog.Logger
}

func (f *fetcher) fetch(ctx context.Context, rawURL string) (fetched, error) {
	if !f.allowInternal && isInternalURL(rawURL) {
		return fetched{}, fmt.Errorf("%w: %s", errBlockedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetched{}, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fetched{}, &httpStatusError{code: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if f.maxSize > 0 {
		reader = io.LimitReader(resp.Body, f.maxSize)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fetched{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return fetched{data: data, contentType: contentType}, nil
}

func (f *fetcher) text(ctx context.Context, rawURL string) (string, error) {
	r, err := f.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(r.data), nil
}

func (f *fetcher) dataURI(ctx context.Context, rawURL string) (string, error) {
	r, err := f.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	mediaType := r.contentType
	if idx := strings.Index(mediaType, ";"); idx > 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(r.data), nil
}

// failed logs a resource that could not be inlined. Missing resources are common
// and only logged at debug level.
func (f *fetcher) failed(kind, rawURL string, err error) {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
		f.logger.Debug("resource not found", "kind", kind, "url", rawURL)
		return
	}
	f.logger.Warn("failed to fetch resource", "kind", kind, "url", rawURL, "error", err)
}

// InlineResources rewrites html so stylesheets, scripts and images are
// embedded and the page renders offline. Resources that cannot be fetched
// keep their original reference, resolved through an added <base> element.
func InlineResources(ctx context.Context, html string, opts InlineOptions) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &fetcher{
		client:        &http.Client{Timeout: opts.Timeout},
		maxSize:       opts.MaxResourceSize,
		allowInternal: opts.AllowInternal,
		logger:        logger,
	}

	if opts.InlineCSS {
		doc.Find("link[rel='stylesheet']").Each(func(_ int, s *goquery.Selection) {
			cssURL := resolveURL(baseURL, s.AttrOr("href", ""))
			if cssURL == "" {
				return
			}
			css, err := f.text(ctx, cssURL)
			if err != nil {
				f.failed("css", cssURL, err)
				return
			}
			css = inlineCSSURLs(ctx, f, css, cssURL)
			s.ReplaceWithHtml("<style>" + css + "</style>")
		})
	}

	if opts.InlineJS {
		doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
			jsURL := resolveURL(baseURL, s.AttrOr("src", ""))
			if jsURL == "" {
				return
			}
			js, err := f.text(ctx, jsURL)
			if err != nil {
				f.failed("js", jsURL, err)
				return
			}
			s.RemoveAttr("src")
			s.SetText(js)
		})
	}

	if opts.InlineImages {
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			imgURL := resolveURL(baseURL, s.AttrOr("src", ""))
			if imgURL == "" {
				return
			}
			dataURI, err := f.dataURI(ctx, imgURL)
			if err != nil {
				f.failed("image", imgURL, err)
				return
			}
			s.SetAttr("src", dataURI)
		})

		// srcset candidates are not fetched; dropping it falls back to src.
		doc.Find("img[srcset], source[srcset]").Each(func(_ int, s *goquery.Selection) {
			s.RemoveAttr("srcset")
		})
	}

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style := s.AttrOr("style", "")
		if strings.Contains(style, "url(") {
			s.SetAttr("style", inlineCSSURLs(ctx, f, style, opts.BaseURL))
		}
	})

	if head := doc.Find("head"); head.Length() > 0 && doc.Find("base").Length() == 0 {
		head.PrependHtml(fmt.Sprintf(`<base href="%s">`, baseURL.String()))
	}

	result, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return result, nil
}

// resolveURL resolves ref against base. Empty, data: and javascript:
// references resolve to "".
func resolveURL(base *url.URL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(refURL).String()
}

// inlineCSSURLs replaces url() references in css with data URIs. References
// that cannot be fetched are left as written.
func inlineCSSURLs(ctx context.Context, f *fetcher, css, baseURLStr string) string {
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		return css
	}

	var out strings.Builder
	remaining := css
	for {
		start := strings.Index(remaining, "url(")
		if start == -1 {
			out.WriteString(remaining)
			break
		}
		out.WriteString(remaining[:start])

		end := strings.Index(remaining[start+4:], ")")
		if end == -1 {
			out.WriteString(remaining[start:])
			break
		}
		original := remaining[start : start+4+end+1]
		ref := strings.Trim(strings.TrimSpace(remaining[start+4:start+4+end]), `"'`)
		remaining = remaining[start+4+end+1:]

		resolved := resolveURL(baseURL, ref)
		if resolved == "" {
			out.WriteString(original)
			continue
		}
		dataURI, err := f.dataURI(ctx, resolved)
		if err != nil {
			f.failed("css-url", resolved, err)
			out.WriteString(original)
			continue
		}
		out.WriteString("url(" + dataURI + ")")
	}
	return out.String()
}

var internalSuffixes = []string{".local", ".localhost", ".internal", ".localdomain"}

// isInternalURL reports whether rawURL targets a host that captured pages
// must not reach: loopback, private, link-local or unspecified addresses and
// internal-only names. Unparseable URLs count as internal.
func isInternalURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" {
		return true
	}
	for _, suffix := range internalSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
