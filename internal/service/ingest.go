package service

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/context"
)

// IngestOptions bounds what the remote fetcher will talk to and accept.
type IngestOptions struct {
	HTTPTimeout  time.Duration
	AllowPrivate bool
	AllowedHosts []string
	MaxBytes     int64
}

// Ingester pulls a remote URL into the store under a logical name. URLs are
// validated against SSRF before and during redirects.
type Ingester struct {
	resolver *Resolver
	opts     IngestOptions
}

// NewIngester builds an Ingester over the resolver.
func NewIngester(resolver *Resolver, opts IngestOptions) *Ingester {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Minute
	}
	return &Ingester{resolver: resolver, opts: opts}
}

// HTTPStatusError is returned for non-200 upstream responses.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

func hostAllowed(host string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSpace(host))
	for _, entry := range allowlist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(host, entry) {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}

func isLocalHostname(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "localhost" || host == "localhost.localdomain" {
		return true
	}
	return strings.HasSuffix(host, ".local")
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsMulticast() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return true
	}
	return ip.IsPrivate()
}

// ValidateSourceURL checks a source URL before a task is accepted, so a bad
// URL fails at submission instead of inside the worker.
func (g *Ingester) ValidateSourceURL(rawURL string) error {
	_, err := g.validateURL(rawURL)
	return err
}

func (g *Ingester) validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, Validationf("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, Validationf("unsupported scheme")
	}
	host := u.Hostname()
	if host == "" {
		return nil, Validationf("missing host")
	}
	if !hostAllowed(host, g.opts.AllowedHosts) {
		return nil, Validationf("host not allowed")
	}
	if g.opts.AllowPrivate {
		return u, nil
	}
	if isLocalHostname(host) {
		return nil, Validationf("host not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, Validationf("ip not allowed")
		}
		return u, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, Validationf("host not resolvable")
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return nil, Validationf("ip not allowed")
		}
	}
	return u, nil
}

// Fetch downloads the source and resolves it under the logical name. The
// body streams through the resolver's spool, so the size cap is enforced on
// actual bytes, not on the advertised Content-Length.
func (g *Ingester) Fetch(ctx context.Context, logicalName, rawURL, uploadedBy string) (*Resolution, error) {
	parsed, err := g.validateURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Timeout: g.opts.HTTPTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			_, err := g.validateURL(req.URL.String())
			return err
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	if g.opts.MaxBytes > 0 && resp.ContentLength > g.opts.MaxBytes {
		return nil, Validationf("content too large")
	}

	body := io.Reader(resp.Body)
	if g.opts.MaxBytes > 0 {
		body = &cappedReader{r: resp.Body, remaining: g.opts.MaxBytes}
	}
	return g.resolver.Resolve(ctx, logicalName, body, uploadedBy)
}

// cappedReader fails once more than the cap has been read, instead of
// silently truncating like io.LimitReader would.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, fmt.Errorf("content too large")
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, fmt.Errorf("content too large")
	}
	return n, err
}
