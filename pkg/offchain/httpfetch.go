package offchain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/moortools/moorage/moapi"
)

// HTTPFetch serves the "http" and "https" schemes.  These are read-only
// addresses: plain web servers give us no generic way to mint new document
// URIs, so Upload always fails.
//
// Transport retry policy belongs to the adapter; the dataset and pointer
// layers above never retry.
type HTTPFetch struct {
	client *retryablehttp.Client
}

var _ Adapter = (*HTTPFetch)(nil)

const (
	httpRetryMax       = 3
	httpRequestTimeout = 30 * time.Second
	maxDocumentSize    = 4 << 20 // 4 MiB; off-chain index documents are small
)

func NewHTTPFetch() *HTTPFetch {
	client := retryablehttp.NewClient()
	client.RetryMax = httpRetryMax
	client.HTTPClient.Timeout = httpRequestTimeout
	client.Logger = nil
	return &HTTPFetch{client: client}
}

// Download implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-read -- on any transport failure, non-2xx
//      response, or parse failure
func (a *HTTPFetch) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, string(uri), nil)
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, moapi.ErrorRemoteRead(string(uri),
			fmt.Errorf("unexpected response status %q", resp.Status))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	doc, err := moapi.DecodeDocument(raw)
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	return doc, nil
}

// Upload implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-write -- always; http(s) addresses are
//      read-only
func (a *HTTPFetch) Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error) {
	return "", moapi.ErrorRemoteWrite("http",
		fmt.Errorf("http(s) documents are read-only; uploads need a writable scheme"))
}
