// Package offchain provides the adapters that download and upload
// URI-addressed off-chain documents, plus the registry that dispatches a
// URI to the adapter owning its scheme.
//
// The registry is an explicit object handed to everything that resolves
// documents; there is no process-global configuration.  Tests build their
// own registries and throw them away.
package offchain

import (
	"context"
	"strings"
	"sync"

	"github.com/facette/natsort"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/tracing"
)

// Adapter downloads and uploads documents for one (or more) URI schemes.
//
// Timeouts and transport retry policy belong to the adapter; the layers
// above never retry and never impose deadlines of their own.
type Adapter interface {
	// Download fetches and parses the document at uri.
	//
	// Errors:
	//
	//    - moorage-error-remote-read -- on any transport or parse failure
	Download(ctx context.Context, uri moapi.URI) (moapi.Document, error)

	// Upload stores a new document and returns the URI it is now
	// addressable under.
	//
	// Errors:
	//
	//    - moorage-error-remote-write -- on any transport failure, or when
	//      the adapter's scheme is read-only
	Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error)
}

// Registry maps URI schemes to adapters.  Schemes are case-insensitive.
type Registry struct {
	mu       sync.Mutex
	byScheme map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{byScheme: map[string]Adapter{}}
}

// Register binds an adapter to a scheme, replacing any previous binding.
func (r *Registry) Register(scheme string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byScheme[strings.ToLower(scheme)] = a
}

// Lookup returns the adapter owning a scheme.
//
// Errors:
//
//    - moorage-error-unknown-scheme -- when no adapter is registered for
//      the scheme
func (r *Registry) Lookup(scheme string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byScheme[strings.ToLower(scheme)]
	if !ok {
		return nil, moapi.ErrorUnknownScheme(scheme)
	}
	return a, nil
}

// Schemes lists the registered schemes in natural order.
func (r *Registry) Schemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	schemes := make([]string, 0, len(r.byScheme))
	for s := range r.byScheme {
		schemes = append(schemes, s)
	}
	natsort.Sort(schemes)
	return schemes
}

// Reset drops all registered adapters.  Intended for test teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byScheme = map[string]Adapter{}
}

// Download is a convenience that parses the URI's scheme, looks up the
// adapter, and downloads through it.
//
// Errors:
//
//    - moorage-error-unknown-scheme -- when no adapter owns the scheme
//    - moorage-error-remote-read -- on any transport or parse failure
func (r *Registry) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	a, err := r.Lookup(uri.Scheme())
	if err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "offchain.download",
		trace.WithAttributes(
			attribute.String(tracing.AttrKeyMoorageScheme, uri.Scheme()),
			attribute.String(tracing.AttrKeyMoorageDocURI, string(uri))))
	defer span.End()
	doc, err := a.Download(ctx, uri)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	return doc, nil
}
