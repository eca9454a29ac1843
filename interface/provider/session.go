package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/cavaliercoder/grab"
	"golang.org/x/net/publicsuffix"
)

// defaultHTTPTimeout is the timeout of the requests to the portals
const defaultHTTPTimeout = time.Minute

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// FileInfo is the result of a HEAD request on a download link
type FileInfo struct {
	URL      string
	Filename string
	Size     int64
}

// Session is an http client with a cookie jar, keeping the session cookies of a portal (JSESSIONID, XSRF-TOKEN...)
type Session struct {
	Client    *http.Client
	UserAgent string
	Headers   map[string]string
}

// NewSession creates a new session with an empty cookie jar
func NewSession(timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("NewSession: %w", err)
	}
	return &Session{
		Client:    &http.Client{Jar: jar, Timeout: timeout},
		UserAgent: defaultUserAgent,
		Headers:   map[string]string{},
	}, nil
}

// Reset removes all the cookies of the session
func (s *Session) Reset() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("Session.Reset: %w", err)
	}
	s.Client.Jar = jar
	return nil
}

// Cookie returns the value of the cookie of the session for the given url
func (s *Session) Cookie(rawurl, name string) string {
	u, err := url.Parse(rawurl)
	if err != nil || s.Client.Jar == nil {
		return ""
	}
	for _, c := range s.Client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (s *Session) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)
	return req, nil
}

func (s *Session) setHeaders(req *http.Request) {
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
}

// do sends the request and returns the body of the response. Status other than 2xx are errors tagged with service.HTTPError.
func (s *Session) do(req *http.Request) ([]byte, error) {
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, service.MakeTemporary(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, service.HTTPError(resp.StatusCode, fmt.Errorf("%s %s: %s", req.Method, req.URL.Redacted(), resp.Status))
	}
	return body, nil
}

// Get returns the body of the page
func (s *Session) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("Session.Get: %w", err)
	}
	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("Session.Get: %w", err)
	}
	return body, nil
}

// GetJSON decodes the json response of the url in v
func (s *Session) GetJSON(ctx context.Context, url string, v interface{}) error {
	body, err := s.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("Session.GetJSON[%s]: %w", url, err)
	}
	return nil
}

// PostForm posts the values url-encoded and returns the body of the response
func (s *Session) PostForm(ctx context.Context, url string, values url.Values) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodPost, url, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("Session.PostForm: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("Session.PostForm: %w", err)
	}
	return body, nil
}

// Head probes the download link and returns the name (from Content-Disposition or from the url) and the size of the file
func (s *Session) Head(ctx context.Context, rawurl string) (FileInfo, error) {
	req, err := s.newRequest(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return FileInfo{}, fmt.Errorf("Session.Head: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return FileInfo{}, service.MakeTemporary(fmt.Errorf("Session.Head: %w", err))
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return FileInfo{}, ErrProductNotFound{rawurl}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FileInfo{}, service.HTTPError(resp.StatusCode, fmt.Errorf("Session.Head[%s]: %s", req.URL.Redacted(), resp.Status))
	}
	info := FileInfo{URL: rawurl, Size: resp.ContentLength}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		info.Filename = filenameFromDisposition(cd)
	}
	if info.Filename == "" {
		if u, err := url.Parse(rawurl); err == nil {
			info.Filename = filepath.Base(u.Path)
		}
	}
	return info, nil
}

// Download the file to dstFile using the cookies of the session
func (s *Session) Download(ctx context.Context, url, dstFile, displayPrefix string) error {
	req, err := grab.NewRequest(dstFile, url)
	if err != nil {
		return fmt.Errorf("Session.Download: %w", err)
	}
	s.setHeaders(req.HTTPRequest)
	req.NoResume = true
	if _, err := download(ctx, s.Client, req, displayPrefix, false); err != nil {
		return fmt.Errorf("Session.Download: %w", err)
	}
	return nil
}
