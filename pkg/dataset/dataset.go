// Package dataset implements the remotely backed dataset: a set of named
// fields whose authoritative values live in a remote, asynchronous store.
// Reads are lazy, cached, and coalesced; writes are local until an explicit
// Commit synthesizes the minimal set of prepared remote operations.
package dataset

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/tracing"
)

// RemoteGetter fetches the current remote value of one field.
// Getters are invoked lazily, at most once per cached value, and never
// before the record's deployment has been confirmed.
type RemoteGetter func(ctx context.Context) (interface{}, error)

// RemoteSetter prepares one physical remote write covering every dirty
// field bound to its group.  It returns a prepared-operation payload (a
// transaction to sign, typically) which this package treats as opaque;
// executing it and confirming it are the caller's business.
type RemoteSetter func(ctx context.Context, dirty map[string]interface{}, opts WriteOptions) (interface{}, error)

// WriteOptions carries caller-supplied context for a commit, such as the
// acting principal.  It is passed through to setters untouched.
type WriteOptions struct {
	// From identifies the acting principal (an account address, usually).
	From string
	// Note carries any further options the setters understand.
	Note map[string]string
}

// FieldSpec binds one field name to its remote capabilities.
//
// Group names the setter identity: all fields carrying the same Group are
// covered by one physical remote write, and exactly one FieldSpec per
// group may supply the Setter.  An empty Group defaults to the field name.
// A field with no setter anywhere in its group is read-only; local writes
// to it still cache, but commits skip it.
type FieldSpec struct {
	Name   string
	Getter RemoteGetter
	Setter RemoteSetter
	Group  string
}

type field struct {
	spec  FieldSpec
	group string

	// The cache cell.  hasValue distinguishes "unresolved" from a cached
	// nil; gen counts local writes so a confirm cannot clean a value
	// written after its operation was prepared.
	hasValue bool
	value    interface{}
	dirty    bool
	gen      uint64
}

// Dataset is the remotely backed dataset.  Construct with New, then drive
// the lifecycle with MarkDeployed/MarkObsolete as the external record's
// existence is confirmed.
//
// A Dataset is owned by exactly one entity; methods are safe for
// concurrent use by that entity's callers.
type Dataset struct {
	mu     sync.Mutex
	state  State
	fields map[string]*field
	groups map[string]RemoteSetter
	flight singleflight.Group
}

// New builds a Dataset from field specs.  The dataset starts NotDeployed.
//
// Errors:
//
//    - moorage-error-invalid -- when a field name is empty or duplicated,
//      a getter is missing, or a setter group is declared with more than
//      one setter
func New(specs ...FieldSpec) (*Dataset, error) {
	ds := &Dataset{
		state:  NotDeployed,
		fields: make(map[string]*field, len(specs)),
		groups: make(map[string]RemoteSetter),
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, moapi.ErrorInvalid("field name may not be empty")
		}
		if _, dup := ds.fields[spec.Name]; dup {
			return nil, moapi.ErrorInvalid("field name declared twice",
				[2]string{"field", strconv.Quote(spec.Name)})
		}
		if spec.Getter == nil {
			return nil, moapi.ErrorInvalid("field must have a remote getter",
				[2]string{"field", strconv.Quote(spec.Name)})
		}
		group := spec.Group
		if group == "" {
			group = spec.Name
		}
		if spec.Setter != nil {
			if _, taken := ds.groups[group]; taken {
				return nil, moapi.ErrorInvalid("setter group already has a setter; declare the setter on one field per group",
					[2]string{"field", strconv.Quote(spec.Name)},
					[2]string{"group", strconv.Quote(group)})
			}
			ds.groups[group] = spec.Setter
		}
		ds.fields[spec.Name] = &field{spec: spec, group: group}
	}
	return ds, nil
}

// Read returns the field's value.  A cached value (fetched earlier, or
// locally written) is returned without any remote call.  Otherwise the
// field's getter is invoked; concurrent reads of the same uncached field
// share one in-flight fetch.
//
// Errors:
//
//    - moorage-error-invalid -- when no field has this name
//    - moorage-error-not-deployed -- when the field is uncached and the
//      record's creation has not been confirmed
//    - moorage-error-obsolete -- when the record has been destroyed,
//      cached value or not
//    - moorage-error-remote-read -- when the getter fails; nothing is
//      cached, so a later Read retries
func (ds *Dataset) Read(ctx context.Context, name string) (interface{}, error) {
	ds.mu.Lock()
	f, ok := ds.fields[name]
	if !ok {
		ds.mu.Unlock()
		return nil, moapi.ErrorInvalid("no such field",
			[2]string{"field", strconv.Quote(name)})
	}
	// Obsolete is terminal and beats the cache: a destroyed record must not
	// keep serving stale values.
	if ds.state == Obsolete {
		ds.mu.Unlock()
		return nil, moapi.ErrorObsolete("read", "field "+strconv.Quote(name))
	}
	if f.hasValue {
		v := f.value
		ds.mu.Unlock()
		return v, nil
	}
	if ds.state == NotDeployed {
		ds.mu.Unlock()
		return nil, moapi.ErrorNotDeployed("read", "field "+strconv.Quote(name))
	}
	ds.mu.Unlock()

	ctx, span := tracing.Start(ctx, "dataset.fetch",
		trace.WithAttributes(attribute.String(tracing.AttrKeyMoorageFieldName, name)))
	defer span.End()
	v, err, _ := ds.flight.Do(name, func() (interface{}, error) {
		return f.spec.Getter(ctx)
	})
	if err != nil {
		err = moapi.ErrorRemoteRead("field "+strconv.Quote(name), err)
		tracing.SetSpanError(ctx, err)
		return nil, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state == Obsolete {
		// The record was destroyed while the fetch was in flight.
		return nil, moapi.ErrorObsolete("read", "field "+strconv.Quote(name))
	}
	if f.hasValue {
		// A local write landed while the fetch was in flight; it wins.
		return f.value, nil
	}
	if ds.state == Deployed {
		f.hasValue = true
		f.value = v
	}
	return v, nil
}

// Write assigns a local value to the field and marks it dirty.  No remote
// call happens; the value reaches the remote store only through Commit.
// Writing a field with no setter still caches (useful for values that are
// only meaningful before creation).
//
// Errors:
//
//    - moorage-error-invalid -- when no field has this name
//    - moorage-error-obsolete -- when the record has been destroyed
func (ds *Dataset) Write(name string, value interface{}) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	f, ok := ds.fields[name]
	if !ok {
		return moapi.ErrorInvalid("no such field",
			[2]string{"field", strconv.Quote(name)})
	}
	if ds.state == Obsolete {
		return moapi.ErrorObsolete("write", "field "+strconv.Quote(name))
	}
	f.value = value
	f.hasValue = true
	f.dirty = true
	f.gen++
	return nil
}

// IsDirty reports whether the field holds a local value not yet covered by
// a confirmed commit.
//
// Errors:
//
//    - moorage-error-invalid -- when no field has this name
func (ds *Dataset) IsDirty(name string) (bool, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	f, ok := ds.fields[name]
	if !ok {
		return false, moapi.ErrorInvalid("no such field",
			[2]string{"field", strconv.Quote(name)})
	}
	return f.dirty, nil
}

// Invalidate drops the field's cached value so the next Read fetches
// again.  A dirty field cannot be invalidated: the local value is the
// newest truth until committed.
//
// Errors:
//
//    - moorage-error-invalid -- when no field has this name, or the field
//      is dirty
func (ds *Dataset) Invalidate(name string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	f, ok := ds.fields[name]
	if !ok {
		return moapi.ErrorInvalid("no such field",
			[2]string{"field", strconv.Quote(name)})
	}
	if f.dirty {
		return moapi.ErrorInvalid("cannot invalidate a dirty field; commit or overwrite it instead",
			[2]string{"field", strconv.Quote(name)})
	}
	f.hasValue = false
	f.value = nil
	return nil
}
