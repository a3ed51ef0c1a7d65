package offchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/moortools/moorage/moapi"
)

// An in-memory adapter intended for tests and local development.  Uploads
// mint "mem://<uuid>" addresses; download counts are tracked per URI so
// tests can assert on laziness and memoization.

const InMemoryScheme = "mem"

type InMemory struct {
	mu        sync.Mutex
	docs      map[moapi.URI]moapi.Document
	downloads map[moapi.URI]int
}

var _ Adapter = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		docs:      map[moapi.URI]moapi.Document{},
		downloads: map[moapi.URI]int{},
	}
}

// Put seeds a document under a caller-chosen URI.
func (a *InMemory) Put(uri moapi.URI, doc moapi.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[uri] = doc
}

// Downloads reports how many times a URI has been downloaded.
func (a *InMemory) Downloads(uri moapi.URI) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.downloads[uri]
}

// Download implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-read -- when no document is stored at uri
func (a *InMemory) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.downloads[uri]++
	doc, ok := a.docs[uri]
	if !ok {
		return nil, moapi.ErrorRemoteRead(string(uri), fmt.Errorf("no document stored at this address"))
	}
	// Shallow copy so callers cannot mutate the stored document.
	out := make(moapi.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

// Upload implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-write -- never; the signature carries it for
//      interface conformance
func (a *InMemory) Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error) {
	uri := moapi.URI(fmt.Sprintf("%s://%s", InMemoryScheme, uuid.New().String()))
	a.Put(uri, doc)
	return uri, nil
}
