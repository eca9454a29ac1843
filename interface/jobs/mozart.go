package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

const mozartSubmitPath = "/api/v0.1/job/submit"

// MozartSubmitter submits the jobs to the Mozart REST API of HySDS
type MozartSubmitter struct {
	URL         string
	HTTPClient  *http.Client
	Auth        service.HTTPAuth
	EnableDedup bool
}

// NewMozartSubmitter creates a submitter to the mozart url (e.g. https://mozart/mozart)
// httpClient may add the OAuth2 token (see shared.NewHTTPClient)
func NewMozartSubmitter(mozartURL string, httpClient *http.Client) *MozartSubmitter {
	return &MozartSubmitter{URL: strings.TrimSuffix(mozartURL, "/"), HTTPClient: httpClient}
}

type mozartResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Message string `json:"message"`
}

// Submit implements Submitter
func (m *MozartSubmitter) Submit(ctx context.Context, job Job) (string, error) {
	params, err := json.Marshal(job.ParamsMap())
	if err != nil {
		return "", fmt.Errorf("MozartSubmitter.Submit: %w", err)
	}
	tags, err := json.Marshal([]string{job.Rule.RuleName})
	if err != nil {
		return "", fmt.Errorf("MozartSubmitter.Submit: %w", err)
	}
	form := url.Values{
		"queue":        {job.Rule.Queue},
		"priority":     {job.Rule.Priority},
		"tags":         {string(tags)},
		"type":         {job.Spec},
		"params":       {string(params)},
		"name":         {job.Name},
		"enable_dedup": {fmt.Sprint(m.EnableDedup)},
	}
	body, err := service.HTTPPostWithAuth(ctx, m.HTTPClient, m.URL+mozartSubmitPath, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), m.Auth)
	if err != nil {
		return "", fmt.Errorf("MozartSubmitter.Submit[%s]: %w", job.Name, err)
	}
	var resp mozartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("MozartSubmitter.Submit[%s]: %w", job.Name, err)
	}
	if !resp.Success {
		return "", service.MakeFatal(fmt.Errorf("MozartSubmitter.Submit[%s]: %s", job.Name, resp.Message))
	}
	log.Logger(ctx).Sugar().Infof("job %s submitted: %s", job.Name, resp.Result)
	return resp.Result, nil
}
