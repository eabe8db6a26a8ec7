// Package photo resolves a profile photo from exactly one of two sources: a
// file uploaded with the request or a remote URL downloaded by the server.
// Either way the bytes end up under the upload directory and the stored path
// is returned as the photo reference.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/metrics"
)

var (
	ErrAmbiguousPhotoSource = errors.New("provide either a photo file or a photo URL, not both")
	ErrMissingPhotoSource   = errors.New("a photo file or a photo URL is required")
	ErrInvalidPhotoURL      = errors.New("photo URL must be an absolute http or https URL")
	ErrPhotoFetchFailed     = errors.New("failed to fetch photo")
	ErrPhotoTooLarge        = errors.New("photo exceeds the size limit")
	ErrPhotoStore           = errors.New("failed to store photo")
	// ErrBlockedAddress is returned by the default client's dialer when a
	// photo URL resolves to a loopback, private or link-local address.
	ErrBlockedAddress = errors.New("photo host is not a public address")
)

// carrierNAT is the shared address space of RFC 6598.
var carrierNAT = netip.MustParsePrefix("100.64.0.0/10")

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 5 << 20

	fallbackName = "photo"
	maxNameLen   = 64
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Upload is a photo supplied in the request body.
type Upload struct {
	Filename string
	Content  io.Reader
}

type Config struct {
	Dir      string
	MaxBytes int64
	Timeout  time.Duration
	// HTTPClient defaults to a client with Timeout that only dials public
	// addresses.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type Resolver struct {
	dir      string
	maxBytes int64
	timeout  time.Duration
	client   *http.Client
	metrics  *metrics.Metrics
}

func NewResolver(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("photo: upload directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("photo: create upload directory: %w", err)
	}

	r := &Resolver{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
		metrics:  cfg.Metrics,
	}
	if r.maxBytes <= 0 {
		r.maxBytes = DefaultMaxBytes
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.client == nil {
		r.client = publicOnlyClient(r.timeout)
	}
	return r, nil
}

// publicOnlyClient checks every dialed address, redirects included, after
// DNS resolution. Proxies are disabled so the check sees the real target.
func publicOnlyClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout, Control: rejectNonPublic}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{Timeout: timeout, Transport: transport}
}

func rejectNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if !isPublicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		carrierNAT.Contains(addr):
		return false
	}
	return true
}

// Resolve stores the photo from whichever source is present and returns its
// path. Exactly one of upload and remoteURL must be given. On failure no
// file is left behind.
func (r *Resolver) Resolve(ctx context.Context, upload *Upload, remoteURL string) (string, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	hasUpload := upload != nil && upload.Content != nil

	switch {
	case hasUpload && remoteURL != "":
		r.metrics.RecordPhoto("none", "ambiguous")
		return "", ErrAmbiguousPhotoSource
	case !hasUpload && remoteURL == "":
		r.metrics.RecordPhoto("none", "missing")
		return "", ErrMissingPhotoSource
	case hasUpload:
		ref, err := r.storeUpload(ctx, upload)
		r.metrics.RecordPhoto("upload", outcome(err))
		return ref, err
	default:
		ref, err := r.fetch(ctx, remoteURL)
		r.metrics.RecordPhoto("url", outcome(err))
		return ref, err
	}
}

func (r *Resolver) storeUpload(ctx context.Context, upload *Upload) (string, error) {
	dest := r.destination(upload.Filename)
	if err := r.writeAtomic(ctx, dest, upload.Content); err != nil {
		if errors.Is(err, ErrPhotoTooLarge) {
			return "", err
		}
		logger.FromContext(ctx).Error("photo upload write failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrPhotoStore, err)
	}
	return dest, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidPhotoURL
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", ErrInvalidPhotoURL
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warn("photo fetch failed", "host", u.Host, "error", err)
		return "", fmt.Errorf("%w: %w", ErrPhotoFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.FromContext(ctx).Warn("photo fetch rejected", "host", u.Host, "status", resp.StatusCode)
		return "", fmt.Errorf("%w: remote returned %d", ErrPhotoFetchFailed, resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return "", ErrPhotoTooLarge
	}

	dest := r.destination(path.Base(u.Path))
	if err := r.writeAtomic(ctx, dest, resp.Body); err != nil {
		if errors.Is(err, ErrPhotoTooLarge) {
			return "", err
		}
		logger.FromContext(ctx).Warn("photo download interrupted", "host", u.Host, "error", err)
		return "", fmt.Errorf("%w: %w", ErrPhotoFetchFailed, err)
	}
	return dest, nil
}

// writeAtomic streams src into a temp file beside dest and renames it into
// place once fully written. The temp file is removed on any failure.
func (r *Resolver) writeAtomic(ctx context.Context, dest string, src io.Reader) (err error) {
	tmp, err := os.CreateTemp(r.dir, ".photo-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	limited := io.LimitReader(&ctxReader{ctx: ctx, r: src}, r.maxBytes+1)
	n, err := io.Copy(tmp, limited)
	if err != nil {
		return err
	}
	if n > r.maxBytes {
		return ErrPhotoTooLarge
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (r *Resolver) destination(name string) string {
	return filepath.Join(r.dir, uuid.NewString()+"-"+sanitizeName(name))
}

// sanitizeName keeps a short, path-free, filesystem-safe version of name.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > maxNameLen {
		name = name[len(name)-maxNameLen:]
	}
	if name == "" {
		return fallbackName
	}
	return name
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidPhotoURL):
		return "invalid_url"
	case errors.Is(err, ErrPhotoTooLarge):
		return "too_large"
	case errors.Is(err, ErrPhotoFetchFailed):
		return "fetch_failed"
	default:
		return "error"
	}
}

// ctxReader stops a copy as soon as ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
