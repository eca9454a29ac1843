package shared

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Config are the client credentials used to get a token for the HySDS endpoints (Mozart, GRQ)
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewHTTPClient returns a client adding a bearer token to the requests if cfg.TokenURL is set.
// insecure disables the verification of the certificates (self-signed HySDS deployments).
// The token is refreshed when it expires.
func NewHTTPClient(ctx context.Context, cfg OAuth2Config, timeout time.Duration, insecure bool) *http.Client {
	base := &http.Client{Timeout: timeout}
	if insecure {
		base.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	if cfg.TokenURL == "" {
		return base
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = timeout
	return client
}
