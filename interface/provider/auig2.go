package provider

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// Default endpoints of the AUIG2 portal
const (
	AUIG2LoginURL       = "https://auig2.jaxa.jp/openam/UI/Login"
	AUIG2ArchivePattern = "https://auig2.jaxa.jp/pp/service/download?downloadurl=/start/{ORDER_ID}.zip&run=1"
)

// AUIG2ImageProvider implements ImageProvider for the AUIG2 ordering portal of JAXA
type AUIG2ImageProvider struct {
	Credentials Credentials
	Auth        Authenticator
	// ArchivePattern is the url of an order, {ORDER_ID} being replaced by the order id
	ArchivePattern string
	Timeout        time.Duration
}

// NewAUIG2ImageProvider creates a new ImageProvider for AUIG2 orders
func NewAUIG2ImageProvider(creds Credentials) *AUIG2ImageProvider {
	return &AUIG2ImageProvider{
		Credentials: creds,
		Auth: FormLogin{
			Portal:        "AUIG2",
			URL:           AUIG2LoginURL,
			UserField:     "IDToken1",
			PasswordField: "IDToken2",
			FailureMarker: "IDToken2",
			GetFirst:      true,
		},
		ArchivePattern: AUIG2ArchivePattern,
		Timeout:        defaultHTTPTimeout,
	}
}

// Name implements ImageProvider
func (ip *AUIG2ImageProvider) Name() string {
	return "AUIG2"
}

// ArchiveURL returns the download url of the order
func (ip *AUIG2ImageProvider) ArchiveURL(orderID string) string {
	return common.FormatBrackets(ip.ArchivePattern, map[string]string{"ORDER_ID": url.QueryEscape(orderID)})
}

// Download implements ImageProvider
func (ip *AUIG2ImageProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	if archive.OrderID == "" {
		return "", service.MakeFatal(fmt.Errorf("AUIG2ImageProvider: missing order id"))
	}
	ctx = log.With(ctx, "order_id", archive.OrderID)
	s, err := NewSession(ip.Timeout)
	if err != nil {
		return "", fmt.Errorf("AUIG2ImageProvider: %w", err)
	}
	if err := ip.Auth.Login(ctx, s, ip.Credentials); err != nil {
		return "", fmt.Errorf("AUIG2ImageProvider: %w", err)
	}

	link := ip.ArchiveURL(archive.OrderID)
	info, err := s.Head(ctx, link)
	if err != nil {
		return "", fmt.Errorf("AUIG2ImageProvider: %w", err)
	}
	if info.Filename == "" || info.Filename == "download" {
		info.Filename = archive.OrderID + ".zip"
	}
	localFile := filepath.Join(localDir, info.Filename)
	log.Logger(ctx).Sugar().Infof("downloading order %s to %s (%s)", archive.OrderID, localFile, fmtBytes(info.Size))
	if err := s.Download(ctx, link, localFile, "AUIG2 "+archive.OrderID); err != nil {
		return "", fmt.Errorf("AUIG2ImageProvider: %w", err)
	}
	if err := checkSize(localFile, info.Size); err != nil {
		os.Remove(localFile)
		return "", fmt.Errorf("AUIG2ImageProvider: %w", err)
	}
	return localFile, nil
}

// checkSize returns a temporary error if the size of the file is not the expected one (ignored if expected < 0)
func checkSize(file string, expected int64) error {
	if expected < 0 {
		return nil
	}
	if size := service.FileSize(file); size != expected {
		return service.MakeTemporary(fmt.Errorf("incomplete download of %s: %d/%d bytes", filepath.Base(file), size, expected))
	}
	return nil
}

// DecodeContextPassword decodes the password of a _context.json file,
// each character being shifted by (i%3 - 1) where i is its index
func DecodeContextPassword(password string) string {
	runes := []rune(password)
	for i, r := range runes {
		runes[i] = r - rune(i%3-1)
	}
	return string(runes)
}
