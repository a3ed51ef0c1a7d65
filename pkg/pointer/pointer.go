// Package pointer implements the storage pointer: a lazily-resolved
// wrapper around one URI-addressed off-chain document, with schema-declared
// nested pointers.  Resolution follows declared pointer fields on demand;
// a pointer never downloads its document more than once.
package pointer

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/offchain"
	"github.com/moortools/moorage/pkg/tracing"
)

// MaxDepth bounds how deep a pointer graph may be followed.  The schema
// language happily declares cyclic graphs (A pointing to B pointing to A);
// rather than detect cycles by identity, resolution carries a depth budget
// and fails loudly when it runs out.
const MaxDepth = 32

// Pointer wraps one URI.  The URI is immutable for the pointer's lifetime:
// replacing an entity's document means constructing a new Pointer, never
// mutating one in place.
type Pointer struct {
	uri    moapi.URI
	schema moapi.Schema
	reg    *offchain.Registry
	depth  int

	mu       sync.Mutex
	resolved bool
	contents moapi.Document
	flight   singleflight.Group
}

// New wraps a URI with a schema and the adapter registry that will serve
// its download.  No remote call happens here; the first Contents (or
// ToPlainObject) call resolves.
//
// Errors:
//
//    - moorage-error-invalid -- when the URI is malformed
func New(uri string, schema moapi.Schema, reg *offchain.Registry) (*Pointer, error) {
	u, err := moapi.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &Pointer{uri: u, schema: schema, reg: reg, depth: MaxDepth}, nil
}

// Ref returns the URI this pointer was constructed with.  Always available
// synchronously, independent of resolution state.
func (p *Pointer) Ref() moapi.URI {
	return p.uri
}

// Contents resolves and returns the document this pointer addresses.
// Fields declared as pointers in the schema appear as unresolved *Pointer
// values; everything else passes through raw.  The download happens at
// most once per Pointer: concurrent callers share one in-flight fetch, and
// later calls return the memoized result.  A failed resolve caches
// nothing, so the next call retries.
//
// Errors:
//
//    - moorage-error-unknown-scheme -- when no adapter owns the URI scheme
//    - moorage-error-remote-read -- on any download or parse failure
//    - moorage-error-schema-resolution -- when a declared pointer field's
//      value is not a well-formed URI string
//    - moorage-error-depth-exceeded -- when the pointer graph descends
//      past the depth budget
func (p *Pointer) Contents(ctx context.Context) (moapi.Document, error) {
	doc, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	// Shallow copy; the memoized map must stay ours.
	out := make(moapi.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func (p *Pointer) resolve(ctx context.Context) (moapi.Document, error) {
	p.mu.Lock()
	if p.resolved {
		doc := p.contents
		p.mu.Unlock()
		return doc, nil
	}
	p.mu.Unlock()

	v, err, _ := p.flight.Do("resolve", func() (interface{}, error) {
		return p.resolveOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(moapi.Document), nil
}

func (p *Pointer) resolveOnce(ctx context.Context) (moapi.Document, error) {
	ctx, span := tracing.Start(ctx, "pointer.resolve",
		trace.WithAttributes(attribute.String(tracing.AttrKeyMoorageDocURI, string(p.uri))))
	defer span.End()

	if p.depth <= 0 {
		err := moapi.ErrorDepthExceeded(p.uri, MaxDepth)
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	doc, err := p.reg.Download(ctx, p.uri)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	for _, f := range p.schema.Fields {
		if f.Pointer == nil {
			continue
		}
		raw, present := doc[f.Name]
		if !present {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			err := moapi.ErrorSchemaResolution(f.Name, fmt.Sprint(raw),
				fmt.Errorf("value has type %T, expected a URI string", raw))
			tracing.SetSpanError(ctx, err)
			return nil, err
		}
		u, err := moapi.ParseURI(str)
		if err != nil {
			err = moapi.ErrorSchemaResolution(f.Name, strconv.Quote(str), err)
			tracing.SetSpanError(ctx, err)
			return nil, err
		}
		doc[f.Name] = &Pointer{
			uri:    u,
			schema: *f.Pointer,
			reg:    p.reg,
			depth:  p.depth - 1,
		}
	}

	p.mu.Lock()
	p.resolved = true
	p.contents = doc
	p.mu.Unlock()
	return doc, nil
}
