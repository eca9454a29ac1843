package provider

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/airbusgeo/alos2-ingester/service/log"
)

// Default endpoints of the Optemis dashboard
const (
	OptemisLoginURL  = "https://optemis.sentinel-asia.org/dashboard/users/login"
	OptemisSigninURL = "https://optemis.sentinel-asia.org/dashboard/users/signin"
)

var csrfRegexp = regexp.MustCompile(`<meta name="csrf-token" content="([^"]*)"`)

// OptemisLogin logs in the Optemis dashboard of Sentinel-Asia, using the CSRF token of the login page
type OptemisLogin struct {
	LoginURL  string
	SigninURL string
}

// NewOptemisLogin returns the login of the Optemis dashboard
func NewOptemisLogin() OptemisLogin {
	return OptemisLogin{LoginURL: OptemisLoginURL, SigninURL: OptemisSigninURL}
}

// Login implements Authenticator
func (o OptemisLogin) Login(ctx context.Context, s *Session, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return ErrAuthentication{Portal: "Optemis", Reason: "missing username or password"}
	}
	page, err := s.Get(ctx, o.LoginURL)
	if err != nil {
		return fmt.Errorf("OptemisLogin: %w", err)
	}
	m := csrfRegexp.FindSubmatch(page)
	if m == nil {
		return ErrAuthentication{Portal: "Optemis", Reason: "csrf token not found in " + o.LoginURL}
	}
	token := string(m[1])

	headers := map[string]string{"Referer": o.LoginURL}
	if xsrf := s.Cookie(o.LoginURL, "XSRF-TOKEN"); xsrf != "" {
		if v, err := url.QueryUnescape(xsrf); err == nil {
			xsrf = v
		}
		headers["X-XSRF-TOKEN"] = xsrf
	}
	log.Logger(ctx).Sugar().Debugf("signing in Optemis as %s", creds.Username)

	saved := s.Headers
	s.Headers = map[string]string{}
	for k, v := range saved {
		s.Headers[k] = v
	}
	for k, v := range headers {
		s.Headers[k] = v
	}
	defer func() { s.Headers = saved }()

	if _, err := s.PostForm(ctx, o.SigninURL, url.Values{"email": {creds.Username}, "password": {creds.Password}, "_token": {token}}); err != nil {
		return authError("Optemis", err)
	}
	return nil
}
