package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/jlaffaye/ftp"
)

// FTPImageProvider implements ImageProvider for ftp://[user:password@]host[:port]/path links
type FTPImageProvider struct {
	// Credentials used when the link does not provide any (default: anonymous)
	Credentials Credentials
	Timeout     time.Duration
}

// NewFTPImageProvider creates a new ImageProvider for ftp download links
func NewFTPImageProvider(creds Credentials) *FTPImageProvider {
	return &FTPImageProvider{Credentials: creds, Timeout: 5 * time.Second}
}

// Name implements ImageProvider
func (ip *FTPImageProvider) Name() string {
	return "FTP"
}

// Download implements ImageProvider
func (ip *FTPImageProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	u, err := url.Parse(archive.URL)
	if err != nil || u.Scheme != "ftp" || u.Path == "" {
		return "", service.MakeFatal(fmt.Errorf("FTPImageProvider: invalid url %s", archive.URL))
	}
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	user, pword := ip.Credentials.Username, ip.Credentials.Password
	if u.User != nil {
		user = u.User.Username()
		pword, _ = u.User.Password()
	}
	if user == "" {
		user, pword = "anonymous", "anonymous"
	}

	// Connection to FTP
	ftpOption := []ftp.DialOption{ftp.DialWithTimeout(ip.Timeout), ftp.DialWithContext(ctx)}
	if u.Port() == "990" {
		ftpOption = append(ftpOption, ftp.DialWithTLS(&tls.Config{InsecureSkipVerify: true}))
	}
	c, err := ftp.Dial(host, ftpOption...)
	if err != nil {
		return "", service.MakeTemporary(fmt.Errorf("FTPImageProvider.Dial: %w", err))
	}
	defer c.Quit()
	if err = c.Login(user, pword); err != nil {
		return "", ErrAuthentication{Portal: "ftp://" + u.Host, Reason: err.Error()}
	}

	// Get file size
	s, err := c.FileSize(u.Path)
	if err != nil {
		s = -1
	}

	// Get file stream
	r, err := c.Retr(u.Path)
	if err != nil {
		return "", fmt.Errorf("FTPImageProvider.Retr: %w", err)
	}
	defer r.Close()

	localFile := filepath.Join(localDir, path.Base(u.Path))
	destFile, err := os.Create(localFile)
	if err != nil {
		return "", fmt.Errorf("FTPImageProvider.Create: %w", err)
	}
	defer destFile.Close()

	pw := newProgressWriter(ctx, "FTP "+path.Base(u.Path), s, 0, 20*gportalChunkSize)
	if _, err = io.Copy(destFile, io.TeeReader(r, pw)); err != nil {
		os.Remove(localFile)
		return "", service.MakeTemporary(fmt.Errorf("FTPImageProvider.Copy: %w", err))
	}
	if err := destFile.Close(); err != nil {
		return "", fmt.Errorf("FTPImageProvider.Close: %w", err)
	}
	if err := checkSize(localFile, s); err != nil {
		return "", fmt.Errorf("FTPImageProvider: %w", err)
	}
	return localFile, nil
}
