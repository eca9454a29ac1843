package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/alos2-ingester/service"
)

func TestFilenameFromDisposition(t *testing.T) {
	for disposition, expected := range map[string]string{
		`attachment; filename="ALOS2123456789-200101.zip"`: "ALOS2123456789-200101.zip",
		`attachment; filename=product.zip`:                 "product.zip",
		`attachment;filename=a/b/product.zip`:              "product.zip",
		`inline`:                                           "",
	} {
		if actual := filenameFromDisposition(disposition); actual != expected {
			t.Errorf("%s: expecting %s, got %s", disposition, expected, actual)
		}
	}
}

func TestFmtBytes(t *testing.T) {
	for bytes, expected := range map[int64]string{
		12:            "12.00o",
		2048:          "2.00ko",
		3 * (1 << 20): "3.00Mo",
		5 * (1 << 30): "5.00Go",
	} {
		if actual := fmtBytes(bytes); actual != expected {
			t.Errorf("%d: expecting %s, got %s", bytes, expected, actual)
		}
	}
}

func TestProgressWriter(t *testing.T) {
	pw := newProgressWriter(context.Background(), "test", 100, 10, 20)
	for i := 0; i < 5; i++ {
		if n, err := pw.Write(make([]byte, 15)); err != nil || n != 15 {
			t.Fatalf("write: %d %v", n, err)
		}
	}
	if pw.Written() != 85 {
		t.Errorf("expecting 85 bytes, got %d", pw.Written())
	}
}

func TestSessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "1234", Path: "/"})
		case "/private":
			if c, err := r.Cookie("JSESSIONID"); err != nil || c.Value != "1234" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s, err := NewSession(defaultHTTPTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, srv.URL+"/private"); !service.Fatal(err) {
		t.Errorf("expecting fatal error, got %v", err)
	}
	if _, err := s.Get(ctx, srv.URL+"/login"); err != nil {
		t.Fatal(err)
	}
	if c := s.Cookie(srv.URL, "JSESSIONID"); c != "1234" {
		t.Errorf("expecting cookie 1234, got %s", c)
	}
	var res struct{ OK bool }
	if err := s.GetJSON(ctx, srv.URL+"/private", &res); err != nil || !res.OK {
		t.Errorf("GetJSON: %v %v", res, err)
	}
	if _, err := s.Get(ctx, srv.URL+"/busy"); !service.Temporary(err) {
		t.Errorf("expecting temporary error, got %v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if c := s.Cookie(srv.URL, "JSESSIONID"); c != "" {
		t.Errorf("expecting no cookie after reset, got %s", c)
	}
}

func TestSessionHeadAndDownload(t *testing.T) {
	content := []byte("PK fake archive content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			w.Header().Set("Content-Disposition", `attachment; filename="product.zip"`)
			http.ServeContent(w, r, "", fakeModTime, bytesReader(content))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s, _ := NewSession(defaultHTTPTimeout)
	info, err := s.Head(ctx, srv.URL+"/download?dataId=1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Filename != "product.zip" || info.Size != int64(len(content)) {
		t.Errorf("unexpected info: %+v", info)
	}
	var nf ErrProductNotFound
	if _, err := s.Head(ctx, srv.URL+"/missing"); !errors.As(err, &nf) {
		t.Errorf("expecting ErrProductNotFound, got %v", err)
	}

	dir := t.TempDir()
	dst := filepath.Join(dir, info.Filename)
	if err := s.Download(ctx, srv.URL+"/download?dataId=1", dst, "test"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != string(content) {
		t.Errorf("unexpected content: %s %v", b, err)
	}
}
