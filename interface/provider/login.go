package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// Authenticator logs a session in a portal
type Authenticator interface {
	Login(ctx context.Context, s *Session, creds Credentials) error
}

// FormLogin posts the credentials in a html form
type FormLogin struct {
	Portal        string
	URL           string
	UserField     string
	PasswordField string
	// Extra fields of the form
	Extra url.Values
	// Cookie that must be set by a successful login (optional)
	SessionCookie string
	// FailureMarker is found in the page returned by a failed login (e.g. the name of the password field, when the login form is displayed again)
	FailureMarker string
	// GetFirst requests the login page before posting the form to initiate the session cookies
	GetFirst bool
}

// Login implements Authenticator
func (f FormLogin) Login(ctx context.Context, s *Session, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return ErrAuthentication{Portal: f.Portal, Reason: "missing username or password"}
	}
	if f.GetFirst {
		if _, err := s.Get(ctx, f.URL); err != nil {
			return fmt.Errorf("FormLogin[%s]: %w", f.Portal, err)
		}
	}
	values := url.Values{}
	for k, v := range f.Extra {
		values[k] = v
	}
	values.Set(f.UserField, creds.Username)
	values.Set(f.PasswordField, creds.Password)

	log.Logger(ctx).Sugar().Debugf("logging in %s as %s", f.Portal, creds.Username)
	body, err := s.PostForm(ctx, f.URL, values)
	if err != nil {
		return authError(f.Portal, err)
	}
	if f.FailureMarker != "" && bytes.Contains(body, []byte(f.FailureMarker)) {
		return ErrAuthentication{Portal: f.Portal, Reason: "invalid credentials"}
	}
	if f.SessionCookie != "" && s.Cookie(f.URL, f.SessionCookie) == "" {
		return ErrAuthentication{Portal: f.Portal, Reason: "no " + f.SessionCookie + " cookie"}
	}
	return nil
}

// authError converts the fatal responses (401, 403) to ErrAuthentication
func authError(portal string, err error) error {
	if service.Fatal(err) {
		return ErrAuthentication{Portal: portal, Reason: err.Error()}
	}
	return fmt.Errorf("login to %s: %w", portal, err)
}
