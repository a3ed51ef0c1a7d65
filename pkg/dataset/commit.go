package dataset

import (
	"context"

	"github.com/facette/natsort"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/tracing"
)

// PreparedOperation describes one physical remote write synthesized by
// Commit: the setter group it came from, the dirty fields it covers, and
// the opaque payload the setter returned (typically an unsigned
// transaction).  Nothing has been executed yet; once the caller has
// executed and confirmed the operation externally, ConfirmCommit marks
// its fields clean.
type PreparedOperation struct {
	Group  string
	Fields []string
	Data   interface{}

	gens map[string]uint64
}

// Commit synthesizes the minimal set of prepared remote operations for the
// current dirty fields: one setter invocation per distinct setter group,
// each receiving every dirty field assigned to it.  Dirty fields whose
// group has no setter are skipped (read-only semantics).  Dirty flags are
// NOT cleared here; they clear in ConfirmCommit, after the caller has seen
// the operation succeed remotely.  On any setter failure everything stays
// dirty and no operations are returned, so a recommit regenerates the full
// set.
//
// Errors:
//
//    - moorage-error-not-deployed -- when the record's creation has not
//      been confirmed; a record that does not exist cannot be mutated
//    - moorage-error-obsolete -- when the record has been destroyed
//    - moorage-error-remote-write -- when a setter fails
func (ds *Dataset) Commit(ctx context.Context, opts WriteOptions) ([]PreparedOperation, error) {
	ds.mu.Lock()
	switch ds.state {
	case NotDeployed:
		ds.mu.Unlock()
		return nil, moapi.ErrorNotDeployed("commit", "the dataset")
	case Obsolete:
		ds.mu.Unlock()
		return nil, moapi.ErrorObsolete("commit", "the dataset")
	}
	// Snapshot the dirty set under the lock; setters run without it.
	dirtyByGroup := map[string]map[string]interface{}{}
	gensByGroup := map[string]map[string]uint64{}
	for name, f := range ds.fields {
		if !f.dirty {
			continue
		}
		if ds.groups[f.group] == nil {
			continue
		}
		if dirtyByGroup[f.group] == nil {
			dirtyByGroup[f.group] = map[string]interface{}{}
			gensByGroup[f.group] = map[string]uint64{}
		}
		dirtyByGroup[f.group][name] = f.value
		gensByGroup[f.group][name] = f.gen
	}
	ds.mu.Unlock()

	groupNames := make([]string, 0, len(dirtyByGroup))
	for g := range dirtyByGroup {
		groupNames = append(groupNames, g)
	}
	natsort.Sort(groupNames)

	ops := make([]PreparedOperation, 0, len(groupNames))
	for _, group := range groupNames {
		dirty := dirtyByGroup[group]
		opCtx, span := tracing.Start(ctx, "dataset.commit",
			trace.WithAttributes(attribute.String(tracing.AttrKeyMoorageCommitGroup, group)))
		data, err := ds.setterFor(group)(opCtx, dirty, opts)
		if err != nil {
			err = moapi.ErrorRemoteWrite(group, err)
			tracing.SetSpanError(opCtx, err)
			span.End()
			return nil, err
		}
		span.End()
		fields := make([]string, 0, len(dirty))
		for name := range dirty {
			fields = append(fields, name)
		}
		natsort.Sort(fields)
		ops = append(ops, PreparedOperation{
			Group:  group,
			Fields: fields,
			Data:   data,
			gens:   gensByGroup[group],
		})
	}
	return ops, nil
}

func (ds *Dataset) setterFor(group string) RemoteSetter {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.groups[group]
}

// ConfirmCommit marks the fields covered by a prepared operation clean.
// Call it once the operation has been executed and confirmed remotely.
// A field written again after the operation was prepared stays dirty: the
// newer local value has not been committed.
func (ds *Dataset) ConfirmCommit(op PreparedOperation) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, name := range op.Fields {
		f, ok := ds.fields[name]
		if !ok {
			continue
		}
		if f.gen == op.gens[name] {
			f.dirty = false
		}
	}
}
