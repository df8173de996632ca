package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	ImageProxyPath       = "/proxy/image"
	maxProxiedImageBytes = int64(10 * 1024 * 1024)
	imageSniffBytes      = 512
	maxImageRedirects    = 3
)

var (
	errProxyScheme  = errors.New("unsupported url scheme")
	errProxyHost    = errors.New("blocked url host")
	errProxyAddress = errors.New("blocked upstream address")
)

// internalHostnames resolve inside a typical local deployment.
var internalHostnames = map[string]struct{}{
	"localhost": {},
	"searxng":   {},
	"redis":     {},
	"scuba":     {},
	"otel":      {},
	"collector": {},
}

// imageProxy serves the images referenced by rendered payloads. Only URLs the
// search service has materialized are fetched, and every connection is checked
// against private address ranges when it is dialed.
type imageProxy struct {
	listed    func(target string) bool
	userAgent string
	logger    *slog.Logger
	client    *http.Client
}

func newImageProxy(listed func(string) bool, userAgent string, logger *slog.Logger) *imageProxy {
	dialer := &net.Dialer{
		Timeout:   8 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   guardDialAddress,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &imageProxy{
		listed:    listed,
		userAgent: userAgent,
		logger:    logger,
		client: &http.Client{
			Timeout:   12 * time.Second,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxImageRedirects {
					return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
				}
				return checkProxyTarget(req.URL)
			},
		},
	}
}

func (p *imageProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ImageProxyPath {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing url")
		return
	}
	target, err := url.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid url")
		return
	}
	if err := checkProxyTarget(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if p.listed == nil || !p.listed(raw) {
		writeError(w, http.StatusForbidden, "image_not_listed", "image is not part of any rendered result")
		return
	}

	resp, err := p.fetch(r.Context(), target)
	if err != nil {
		p.logger.Debug("image proxy fetch failed",
			slog.String("host", target.Hostname()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}
	if resp.ContentLength > maxProxiedImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		return
	}
	p.relay(w, resp)
}

func (p *imageProxy) fetch(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*;q=0.9")
	return p.client.Do(req)
}

// relay streams the body once its first bytes confirm an image.
func (p *imageProxy) relay(w http.ResponseWriter, resp *http.Response) {
	body := io.LimitReader(resp.Body, maxProxiedImageBytes)
	sniff := make([]byte, imageSniffBytes)
	n, err := io.ReadFull(body, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	sniff = sniff[:n]

	contentType := imageContentType(resp.Header.Get("Content-Type"), sniff)
	if contentType == "" {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sniff)
	_, _ = io.Copy(w, body)
}

// imageContentType returns the declared or sniffed type when it is an image.
func imageContentType(declared string, sniff []byte) string {
	contentType := strings.TrimSpace(declared)
	if contentType == "" {
		contentType = http.DetectContentType(sniff)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return ""
	}
	return contentType
}

// checkProxyTarget rejects targets that are visibly internal before any
// network activity. Names that resolve to private space are caught at dial time.
func checkProxyTarget(u *url.URL) error {
	if u == nil {
		return errProxyHost
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errProxyScheme
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return errProxyHost
	}
	if _, ok := internalHostnames[host]; ok {
		return errProxyHost
	}
	for _, suffix := range []string{".local", ".localhost", ".internal"} {
		if strings.HasSuffix(host, suffix) {
			return errProxyHost
		}
	}
	if ip := net.ParseIP(host); ip != nil && privateAddress(ip) {
		return errProxyHost
	}
	return nil
}

// guardDialAddress runs for every connection the proxy opens, after DNS
// resolution, so redirects and rebinding cannot reach private space.
func guardDialAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return errProxyAddress
	}
	ip := net.ParseIP(host)
	if ip == nil || privateAddress(ip) {
		return errProxyAddress
	}
	return nil
}

func privateAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified()
}
