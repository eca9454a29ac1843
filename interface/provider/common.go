package provider

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/cavaliercoder/grab"
)

// ErrProductNotFound is an error returned when a product is not found or available
type ErrProductNotFound struct {
	Product string
}

func (e ErrProductNotFound) Error() string {
	return fmt.Sprintf("Product not found or unavailable: %s", e.Product)
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

func checkRedirectAndCopyAuth(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if auth, ok := via[0].Header["Authorization"]; ok {
		req.Header.Add("Authorization", auth[0])
	}
	return nil
}

// download a file with display every 5% and returns the path of the downloaded file
// If httpClient is nil, a new client is used.
func download(ctx context.Context, httpClient *http.Client, req *grab.Request, displayPrefix string, copyAuthOnRedirect bool) (string, error) {
	client := grab.NewClient()
	if httpClient != nil {
		c := *httpClient
		c.Timeout = 0 // the download is bounded by ctx
		client.HTTPClient = &c
	}
	if copyAuthOnRedirect {
		client.HTTPClient.CheckRedirect = checkRedirectAndCopyAuth
	}
	resp := client.Do(req.WithContext(ctx))

	displayProgress(ctx, displayPrefix, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", req.URL(), err)
		if resp.HTTPResponse == nil {
			return "", service.MakeTemporary(err)
		}
		return "", service.HTTPError(resp.HTTPResponse.StatusCode, err)
	}
	return resp.Filename, nil
}

// filenameFromDisposition returns the filename of a Content-Disposition header (attachment; filename="xxx.zip")
func filenameFromDisposition(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return path.Base(params["filename"])
	}
	// Lenient parsing: take what follows the last "="
	if i := strings.LastIndex(disposition, "="); i >= 0 {
		return path.Base(strings.Trim(strings.TrimSpace(disposition[i+1:]), `"`))
	}
	return ""
}

// progressWriter counts the bytes written and logs the progress every <period> bytes.
// It can be used with io.TeeReader.
type progressWriter struct {
	ctx     context.Context
	prefix  string
	total   int64
	period  int64
	written int64
	lastLog int64
	start   time.Time
}

func newProgressWriter(ctx context.Context, prefix string, total, offset, period int64) *progressWriter {
	return &progressWriter{ctx: ctx, prefix: prefix, total: total, written: offset, lastLog: offset, period: period, start: time.Now()}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := atomic.AddInt64(&pw.written, int64(len(p)))
	if n-pw.lastLog >= pw.period {
		pw.lastLog = n
		percent := 0.0
		if pw.total > 0 {
			percent = 100 * float64(n) / float64(pw.total)
		}
		speed := float64(n) / time.Since(pw.start).Seconds()
		log.Logger(pw.ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", pw.prefix, percent, fmtBytes(n), fmtBytes(pw.total), fmtBytes(int64(speed)))
	}
	return len(p), nil
}

// Written returns the number of bytes written (including the initial offset)
func (pw *progressWriter) Written() int64 {
	return atomic.LoadInt64(&pw.written)
}
