package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// GPortalLoginURL is the login form of GPortal
const GPortalLoginURL = "https://gportal.jaxa.jp/gpr/auth"

const (
	gportalMaxLoops       = 5
	gportalChunkSize      = 256 * 1024
	gportalProgressChunks = 20
)

// GPortalImageProvider implements ImageProvider for the GPortal links, resuming the interrupted downloads
type GPortalImageProvider struct {
	Credentials Credentials
	Auth        Authenticator
	Timeout     time.Duration
	// MaxLoops is the maximum number of (re)tries of the download
	MaxLoops int
	// ChunkSize is the size of the chunks appended to the file. The progress is logged every ProgressChunks chunks.
	ChunkSize      int
	ProgressChunks int
}

// NewGPortalImageProvider creates a new ImageProvider for GPortal links
func NewGPortalImageProvider(creds Credentials) *GPortalImageProvider {
	return &GPortalImageProvider{
		Credentials: creds,
		Auth: FormLogin{
			Portal:        "GPortal",
			URL:           GPortalLoginURL,
			UserField:     "auth_account",
			PasswordField: "auth_password",
			Extra:         url.Values{"auth_login_submit": {"Login"}},
			FailureMarker: `name="auth_password"`,
			GetFirst:      true,
		},
		Timeout:        defaultHTTPTimeout,
		MaxLoops:       gportalMaxLoops,
		ChunkSize:      gportalChunkSize,
		ProgressChunks: gportalProgressChunks,
	}
}

// Name implements ImageProvider
func (ip *GPortalImageProvider) Name() string {
	return "GPortal"
}

// GPortalLink strips the redirection prefix of a GPortal link (...?goto=<link>)
func GPortalLink(link string) string {
	if i := strings.LastIndex(link, "goto="); i >= 0 {
		return link[i+len("goto="):]
	}
	return link
}

func (ip *GPortalImageProvider) login(ctx context.Context) (*Session, error) {
	s, err := NewSession(ip.Timeout)
	if err != nil {
		return nil, err
	}
	if err := ip.Auth.Login(ctx, s, ip.Credentials); err != nil {
		return nil, err
	}
	return s, nil
}

// Download implements ImageProvider
// If the local file already exists, the download is resumed.
func (ip *GPortalImageProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	if archive.URL == "" {
		return "", service.MakeFatal(fmt.Errorf("GPortalImageProvider: missing url"))
	}
	link := GPortalLink(archive.URL)
	u, err := url.Parse(link)
	if err != nil {
		return "", service.MakeFatal(fmt.Errorf("GPortalImageProvider: %w", err))
	}
	localFile := filepath.Join(localDir, path.Base(u.Path))
	ctx = log.With(ctx, "file", filepath.Base(localFile))

	s, err := ip.login(ctx)
	if err != nil {
		return "", fmt.Errorf("GPortalImageProvider: %w", err)
	}
	info, err := s.Head(ctx, link)
	if err != nil {
		return "", fmt.Errorf("GPortalImageProvider: %w", err)
	}
	if info.Size < 0 {
		return "", service.MakeTemporary(fmt.Errorf("GPortalImageProvider: unknown size of %s", link))
	}

	size := service.FileSize(localFile)
	if size == info.Size {
		log.Logger(ctx).Sugar().Infof("%s already downloaded", localFile)
		return localFile, nil
	}
	if size > info.Size {
		log.Logger(ctx).Sugar().Warnf("%s is larger than expected (%d/%d): restarting the download", localFile, size, info.Size)
		if err := os.Remove(localFile); err != nil {
			return "", fmt.Errorf("GPortalImageProvider: %w", err)
		}
	}

	maxLoops := ip.MaxLoops
	if maxLoops <= 0 {
		maxLoops = gportalMaxLoops
	}
	for loop := 0; loop < maxLoops; loop++ {
		if err := ip.resume(ctx, s, link, localFile, info.Size); err != nil {
			if ctx.Err() != nil || service.Fatal(err) {
				return "", fmt.Errorf("GPortalImageProvider: %w", err)
			}
			log.Logger(ctx).Sugar().Warnf("download interrupted (%d/%d): %v", loop+1, maxLoops, err)
		}
		if size = service.FileSize(localFile); size == info.Size {
			return localFile, nil
		}
		if loop+1 < maxLoops {
			log.Logger(ctx).Sugar().Infof("download incomplete (%s/%s): logging in again", fmtBytes(size), fmtBytes(info.Size))
			if s, err = ip.login(ctx); err != nil {
				return "", fmt.Errorf("GPortalImageProvider: %w", err)
			}
		}
	}
	return "", service.MakeTemporary(fmt.Errorf("GPortalImageProvider: incomplete download of %s after %d loops: %d/%d bytes", link, maxLoops, size, info.Size))
}

// resume appends the missing bytes of the remote file to the local file
func (ip *GPortalImageProvider) resume(ctx context.Context, s *Session, link, localFile string, total int64) error {
	offset := service.FileSize(localFile)
	if offset < 0 {
		offset = 0
	}
	req, err := s.newRequest(ctx, http.MethodGet, link, nil)
	if err != nil {
		return service.MakeFatal(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	c := *s.Client
	c.Timeout = 0
	resp, err := c.Do(req)
	if err != nil {
		return service.MakeTemporary(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return service.HTTPError(resp.StatusCode, fmt.Errorf("GET %s: %s", req.URL.Redacted(), resp.Status))
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if resp.StatusCode != http.StatusPartialContent && offset > 0 {
		// The range is not supported: the whole file is sent
		log.Logger(ctx).Sugar().Warnf("range not supported by the server: restarting the download")
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		offset = 0
	}
	f, err := os.OpenFile(localFile, flags, 0644)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	defer f.Close()

	chunkSize := ip.ChunkSize
	if chunkSize <= 0 {
		chunkSize = gportalChunkSize
	}
	progressChunks := ip.ProgressChunks
	if progressChunks <= 0 {
		progressChunks = gportalProgressChunks
	}
	pw := newProgressWriter(ctx, "GPortal", total, offset, int64(chunkSize*progressChunks))
	buf := make([]byte, chunkSize)
	for {
		n, rerr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("resume.Write: %w", err)
			}
			pw.Write(buf[:n])
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return service.MakeTemporary(fmt.Errorf("resume.Read: %w", rerr))
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("resume.Close: %w", err)
	}
	return nil
}
