// Package record provides a reference ledger-backed entity built on
// pkg/dataset and pkg/pointer: one remote record with an owner, an escrow
// deposit, and an off-chain index document addressed by URI.
//
// It is deliberately small.  Domain entities with richer field sets are
// expected to look like this package, not import it.
package record

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/dataset"
	"github.com/moortools/moorage/pkg/offchain"
	"github.com/moortools/moorage/pkg/pointer"
)

// Field names tracked by a Record.
const (
	FieldOwner   = "owner"
	FieldDataURI = "dataUri"
	FieldDeposit = "deposit"
)

// groupRecord tags the fields that one ledger update call covers.
const groupRecord = "record"

// Ledger is the narrow interface to the smart-contract backend.  Reading a
// field and preparing an update are the only two capabilities this package
// needs; signing, broadcasting, and confirmation live with the caller.
type Ledger interface {
	// RecordField fetches the current remote value of one field of the
	// record at addr.
	RecordField(ctx context.Context, addr string, field string) (interface{}, error)
	// PrepareUpdate builds one unsigned ledger operation covering every
	// dirty field handed to it.  It must not execute anything.
	PrepareUpdate(ctx context.Context, addr string, dirty map[string]interface{}, opts dataset.WriteOptions) (interface{}, error)
}

// Record owns one remotely backed dataset and derives zero-or-one storage
// pointer from its dataUri field.  The pointer is replaced, never mutated,
// when dataUri changes.
type Record struct {
	addr        string
	ds          *dataset.Dataset
	reg         *offchain.Registry
	indexSchema moapi.Schema

	mu     sync.Mutex
	ptr    *pointer.Pointer
	ptrURI string
}

// New binds a record at a ledger address.  The dataset starts NotDeployed;
// call MarkDeployed once the record's creation is confirmed on the ledger.
//
// Errors:
//
//    - moorage-error-invalid -- when addr is empty
func New(addr string, ledger Ledger, reg *offchain.Registry, indexSchema moapi.Schema) (*Record, error) {
	if addr == "" {
		return nil, moapi.ErrorInvalid("record address may not be empty")
	}
	getter := func(field string) dataset.RemoteGetter {
		return func(ctx context.Context) (interface{}, error) {
			return ledger.RecordField(ctx, addr, field)
		}
	}
	ds, err := dataset.New(
		dataset.FieldSpec{
			Name:   FieldOwner,
			Getter: getter(FieldOwner),
			// No setter: ownership does not change through this layer.
		},
		dataset.FieldSpec{
			Name:   FieldDataURI,
			Getter: getter(FieldDataURI),
			Group:  groupRecord,
			Setter: func(ctx context.Context, dirty map[string]interface{}, opts dataset.WriteOptions) (interface{}, error) {
				return ledger.PrepareUpdate(ctx, addr, dirty, opts)
			},
		},
		dataset.FieldSpec{
			Name:   FieldDeposit,
			Getter: getter(FieldDeposit),
			Group:  groupRecord,
		},
	)
	if err != nil {
		return nil, err
	}
	return &Record{
		addr:        addr,
		ds:          ds,
		reg:         reg,
		indexSchema: indexSchema,
	}, nil
}

func (r *Record) Address() string {
	return r.addr
}

// Dataset exposes the underlying dataset for callers that need raw field
// access or commit control beyond the typed accessors below.
func (r *Record) Dataset() *dataset.Dataset {
	return r.ds
}

// Owner returns the record's owning account.
//
// Errors:
//
//    - moorage-error-not-deployed, moorage-error-obsolete,
//      moorage-error-remote-read -- per dataset.Read
//    - moorage-error-invalid -- when the remote value is not a string
func (r *Record) Owner(ctx context.Context) (string, error) {
	return r.readString(ctx, FieldOwner)
}

// DataURI returns the URI of the record's off-chain index document.
//
// Errors:
//
//    - moorage-error-not-deployed, moorage-error-obsolete,
//      moorage-error-remote-read -- per dataset.Read
//    - moorage-error-invalid -- when the remote value is not a string
func (r *Record) DataURI(ctx context.Context) (string, error) {
	return r.readString(ctx, FieldDataURI)
}

// Deposit returns the record's escrow balance as a decimal string.
//
// Errors:
//
//    - moorage-error-not-deployed, moorage-error-obsolete,
//      moorage-error-remote-read -- per dataset.Read
//    - moorage-error-invalid -- when the remote value is not a string
func (r *Record) Deposit(ctx context.Context) (string, error) {
	return r.readString(ctx, FieldDeposit)
}

func (r *Record) readString(ctx context.Context, field string) (string, error) {
	v, err := r.ds.Read(ctx, field)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", moapi.ErrorInvalid("remote field value has an unexpected type",
			[2]string{"field", strconv.Quote(field)},
			[2]string{"type", fmt.Sprintf("%T", v)})
	}
	return s, nil
}

// SetDataURI assigns a new index document URI locally.  The dependent
// storage pointer is replaced on the next Index call; nothing is fetched
// or sent here.
//
// Errors:
//
//    - moorage-error-invalid -- when the URI is malformed
//    - moorage-error-obsolete -- when the record has been destroyed
func (r *Record) SetDataURI(uri string) error {
	if _, err := moapi.ParseURI(uri); err != nil {
		return err
	}
	return r.ds.Write(FieldDataURI, uri)
}

// SetDeposit assigns a new escrow balance locally.
//
// Errors:
//
//    - moorage-error-obsolete -- when the record has been destroyed
func (r *Record) SetDeposit(amount string) error {
	return r.ds.Write(FieldDeposit, amount)
}

// Index returns the storage pointer for the record's index document,
// constructing it on first use and replacing it whenever dataUri has
// changed since the pointer was built.  The pointer itself stays lazy:
// no document is fetched here.
//
// Errors:
//
//    - moorage-error-not-deployed, moorage-error-obsolete,
//      moorage-error-remote-read -- per dataset.Read of dataUri
//    - moorage-error-invalid -- when the stored dataUri is malformed
func (r *Record) Index(ctx context.Context) (*pointer.Pointer, error) {
	uri, err := r.DataURI(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ptr != nil && r.ptrURI == uri {
		return r.ptr, nil
	}
	ptr, err := pointer.New(uri, r.indexSchema, r.reg)
	if err != nil {
		return nil, err
	}
	r.ptr = ptr
	r.ptrURI = uri
	return ptr, nil
}

// MarkDeployed records that the ledger confirmed the record's creation.
//
// Errors:
//
//    - moorage-error-invalid -- when called out of lifecycle order
func (r *Record) MarkDeployed() error {
	return r.ds.MarkDeployed()
}

// MarkObsolete records that the ledger confirmed the record's destruction.
//
// Errors:
//
//    - moorage-error-invalid -- when called out of lifecycle order
func (r *Record) MarkObsolete() error {
	return r.ds.MarkObsolete()
}

// Commit prepares the ledger operations for all dirty fields.
//
// Errors:
//
//    - moorage-error-not-deployed, moorage-error-obsolete,
//      moorage-error-remote-write -- per dataset.Commit
func (r *Record) Commit(ctx context.Context, opts dataset.WriteOptions) ([]dataset.PreparedOperation, error) {
	return r.ds.Commit(ctx, opts)
}

// ConfirmCommit marks an executed operation's fields clean.
func (r *Record) ConfirmCommit(op dataset.PreparedOperation) {
	r.ds.ConfirmCommit(op)
}
