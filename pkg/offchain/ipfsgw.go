package offchain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipfs/go-cid"

	"github.com/moortools/moorage/moapi"
)

// IPFSGateway serves the "ipfs" scheme by fetching content through an HTTP
// gateway.  URIs have the form "ipfs://<cid>"; the CID is validated before
// any request goes out, so a typoed address fails locally and cheaply.
// Content-addressed stores cannot be written through a gateway, so Upload
// always fails.
type IPFSGateway struct {
	gateway string
	client  *retryablehttp.Client
}

var _ Adapter = (*IPFSGateway)(nil)

const DefaultIPFSGateway = "https://ipfs.io"

func NewIPFSGateway(gateway string) *IPFSGateway {
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	client := retryablehttp.NewClient()
	client.RetryMax = httpRetryMax
	// Gateways can be slow to find unpopular content; give them longer
	// than a plain web server.
	client.HTTPClient.Timeout = 2 * time.Minute
	client.Logger = nil
	return &IPFSGateway{
		gateway: strings.TrimRight(gateway, "/"),
		client:  client,
	}
}

// Download implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-read -- on an invalid CID, any transport
//      failure, non-2xx response, or parse failure
func (a *IPFSGateway) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	c, err := cid.Decode(uri.Locator())
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri),
			fmt.Errorf("locator is not a valid CID: %w", err))
	}
	target := fmt.Sprintf("%s/ipfs/%s", a.gateway, c.String())
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
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
			fmt.Errorf("gateway responded with status %q", resp.Status))
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
//    - moorage-error-remote-write -- always; gateways are read-only
func (a *IPFSGateway) Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error) {
	return "", moapi.ErrorRemoteWrite("ipfs",
		fmt.Errorf("ipfs gateways are read-only; pin through an ipfs node instead"))
}
