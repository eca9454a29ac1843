package workflow

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	// AuthorizationHeader is the header key to get the authorization token
	AuthorizationHeader = "authorization"
	tokenPrefix         = "Bearer "
)

// BearerAuthenticate returns a middleware checking the bearer token of the requests (except "/").
// No authentication is required if token is empty.
func BearerAuthenticate(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "" && r.URL.Path != "/" {
				if err := authenticate(token, r.Header.Get(AuthorizationHeader)); err != nil {
					w.WriteHeader(http.StatusForbidden)
					json.NewEncoder(w).Encode(err.Error())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(expected, token string) error {
	switch {
	case expected == "":
		return nil // No auth required
	case token == "":
		return fmt.Errorf("token not found")
	case !strings.HasPrefix(token, tokenPrefix):
		return fmt.Errorf(`missing "` + tokenPrefix + `" prefix`)
	case strings.TrimPrefix(token, tokenPrefix) != expected:
		return fmt.Errorf("invalid token")
	}
	return nil
}
