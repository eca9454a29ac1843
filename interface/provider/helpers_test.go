package provider

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

var fakeModTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func bytesReader(b []byte) io.ReadSeeker {
	return bytes.NewReader(b)
}

// fakePortal counts the logins and checks the session cookie
type fakePortal struct {
	mu     sync.Mutex
	logins int
	cookie string
}

func (p *fakePortal) login(w http.ResponseWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins++
	http.SetCookie(w, &http.Cookie{Name: p.cookie, Value: "session", Path: "/"})
}

func (p *fakePortal) loggedIn(r *http.Request) bool {
	c, err := r.Cookie(p.cookie)
	return err == nil && c.Value == "session"
}

func (p *fakePortal) nbLogins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}
