package grq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// DefaultIndex is the GRQ index of the ALOS2 datasets
const DefaultIndex = "grq"

// Client of the GRQ (HySDS Elasticsearch catalog)
type Client struct {
	URL        string
	Index      string
	HTTPClient *http.Client
	Auth       service.HTTPAuth
	// Tries of a search failing with a non-fatal error, waiting RetryWait (doubled at each try) in between
	Tries     int
	RetryWait time.Duration
}

// NewClient creates a client of the GRQ Elasticsearch endpoint (e.g. http://grq:9200)
func NewClient(url, index string, httpClient *http.Client) *Client {
	if index == "" {
		index = DefaultIndex
	}
	return &Client{URL: strings.TrimSuffix(url, "/"), Index: index, HTTPClient: httpClient, Tries: 3, RetryWait: time.Second}
}

type termQuery struct {
	Query struct {
		Bool struct {
			Must []map[string]map[string]string `json:"must"`
		} `json:"bool"`
	} `json:"query"`
}

func idQuery(id string) termQuery {
	q := termQuery{}
	q.Query.Bool.Must = []map[string]map[string]string{{"term": {"_id": id}}}
	return q
}

// hitsTotal is the total number of hits: an integer (ES < 7) or {"value": n, "relation": "eq"}
type hitsTotal int64

func (t *hitsTotal) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*t = hitsTotal(n)
		return nil
	}
	var v struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("hits.total: %w", err)
	}
	*t = hitsTotal(v.Value)
	return nil
}

type searchResponse struct {
	Hits struct {
		Total hitsTotal `json:"total"`
	} `json:"hits"`
}

// Exists implements catalog.DatasetCatalog
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	query, err := json.Marshal(idQuery(id))
	if err != nil {
		return false, fmt.Errorf("grq.Exists: %w", err)
	}
	url := c.URL + "/" + c.Index + "/_search"
	var body []byte
	err = service.Retriable(ctx, func() (err error) {
		body, err = service.HTTPPostWithAuth(ctx, c.HTTPClient, url, "application/json", bytes.NewReader(query), c.Auth)
		return err
	}, c.RetryWait, max(c.Tries, 1))
	if err != nil {
		return false, fmt.Errorf("grq.Exists[%s]: %w", id, err)
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("grq.Exists[%s]: %w", id, err)
	}
	log.Logger(ctx).Sugar().Debugf("%s: %d hits in %s", id, resp.Hits.Total, c.Index)
	return resp.Hits.Total > 0, nil
}
