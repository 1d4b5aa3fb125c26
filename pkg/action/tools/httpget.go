package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wilhg/sherpa/pkg/action"
)

const maxBody = 64 << 10

// HTTPGet fetches a URL and returns the status line and body.
type HTTPGet struct {
	action.Base
	client *http.Client
}

// NewHTTPGet returns the http.get action. A nil client uses a 10s timeout.
func NewHTTPGet(client *http.Client, opts ...action.Option) *HTTPGet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGet{
		Base: action.NewBase("http.get", "Performs an HTTP GET request and returns the response body",
			[]action.ArgumentSpec{{Name: "url", Type: "string", Description: "absolute URL"}}, opts...),
		client: client,
	}
}

func (t *HTTPGet) Execute(ctx context.Context, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: %s", url, res.Status)
	}
	return string(b), nil
}
