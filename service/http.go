package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPAuth holds the credentials added to a request.
// Basic auth if Name is not empty, bearer token if Token is not empty.
type HTTPAuth struct {
	Name, Password string
	Token          string
}

// HTTPPostWithAuth POSTs the body to the url and returns the body of the response.
func HTTPPostWithAuth(ctx context.Context, client *http.Client, url, contentType string, body io.Reader, auth HTTPAuth) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPPost: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := doWithAuth(client, req, auth)
	if err != nil {
		return nil, fmt.Errorf("HTTPPost[%s]: %w", url, err)
	}
	return resp, nil
}

func doWithAuth(client *http.Client, req *http.Request, auth HTTPAuth) ([]byte, error) {
	if auth.Name != "" {
		req.SetBasicAuth(auth.Name, auth.Password)
	}
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, MakeTemporary(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, HTTPError(resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, truncate(body, 512)))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
