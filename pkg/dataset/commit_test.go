package dataset_test

import (
	"context"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/dataset"
)

// recordingSetter returns a setter that appends each dirty-set it receives
// and hands back a recognizable payload.
func recordingSetter(log *[]map[string]interface{}, payload interface{}) dataset.RemoteSetter {
	return func(ctx context.Context, dirty map[string]interface{}, opts dataset.WriteOptions) (interface{}, error) {
		*log = append(*log, dirty)
		return payload, nil
	}
}

func TestCommitBatchesByGroup(t *testing.T) {
	var calls int32
	var groupA, groupB []map[string]interface{}
	ds := deployed(t,
		dataset.FieldSpec{Name: "price", Getter: countingGetter(&calls, nil), Group: "listing",
			Setter: recordingSetter(&groupA, "tx-listing")},
		dataset.FieldSpec{Name: "currency", Getter: countingGetter(&calls, nil), Group: "listing"},
		dataset.FieldSpec{Name: "owner", Getter: countingGetter(&calls, nil),
			Setter: recordingSetter(&groupB, "tx-owner")},
	)

	qt.Assert(t, ds.Write("price", int64(150)), qt.IsNil)
	qt.Assert(t, ds.Write("currency", "EUR"), qt.IsNil)
	qt.Assert(t, ds.Write("owner", "0xabc"), qt.IsNil)

	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{From: "0xdef"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ops, qt.HasLen, 2)

	// Operations come back in natural group-name order.
	qt.Check(t, ops[0].Group, qt.Equals, "listing")
	qt.Check(t, ops[0].Fields, qt.DeepEquals, []string{"currency", "price"})
	qt.Check(t, ops[0].Data, qt.Equals, "tx-listing")
	qt.Check(t, ops[1].Group, qt.Equals, "owner")
	qt.Check(t, ops[1].Fields, qt.DeepEquals, []string{"owner"})
	qt.Check(t, ops[1].Data, qt.Equals, "tx-owner")

	qt.Assert(t, groupA, qt.HasLen, 1)
	qt.Check(t, groupA[0], qt.DeepEquals, map[string]interface{}{
		"price":    int64(150),
		"currency": "EUR",
	})
	qt.Assert(t, groupB, qt.HasLen, 1)
	qt.Check(t, groupB[0], qt.DeepEquals, map[string]interface{}{
		"owner": "0xabc",
	})
}

func TestCommitWithNothingDirty(t *testing.T) {
	var calls int32
	var log []map[string]interface{}
	ds := deployed(t, dataset.FieldSpec{
		Name: "price", Getter: countingGetter(&calls, int64(100)),
		Setter: recordingSetter(&log, nil),
	})
	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, ops, qt.HasLen, 0)
	qt.Check(t, log, qt.HasLen, 0)
}

func TestCommitSkipsSetterlessFields(t *testing.T) {
	var calls int32
	ds := deployed(t, dataset.FieldSpec{
		Name: "createdAt", Getter: countingGetter(&calls, nil),
	})
	qt.Assert(t, ds.Write("createdAt", int64(1700000000)), qt.IsNil)
	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, ops, qt.HasLen, 0)
	// The field stays dirty; it just has nowhere to go.
	dirty, err := ds.IsDirty("createdAt")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, dirty, qt.IsTrue)
}

func TestConfirmCommitCleansFields(t *testing.T) {
	var calls int32
	var log []map[string]interface{}
	ds := deployed(t, dataset.FieldSpec{
		Name: "price", Getter: countingGetter(&calls, int64(100)),
		Setter: recordingSetter(&log, "tx"),
	})
	qt.Assert(t, ds.Write("price", int64(150)), qt.IsNil)

	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ops, qt.HasLen, 1)
	// Dirty flags survive the prepare; only the confirm cleans them.
	dirty, _ := ds.IsDirty("price")
	qt.Check(t, dirty, qt.IsTrue)

	ds.ConfirmCommit(ops[0])
	dirty, _ = ds.IsDirty("price")
	qt.Check(t, dirty, qt.IsFalse)

	// The committed value remains cached; no fetch happens.
	v, err := ds.Read(context.Background(), "price")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, v, qt.Equals, int64(150))
	qt.Check(t, calls, qt.Equals, int32(0))
}

func TestConfirmCommitSparesRewrittenFields(t *testing.T) {
	var calls int32
	var log []map[string]interface{}
	ds := deployed(t, dataset.FieldSpec{
		Name: "price", Getter: countingGetter(&calls, nil),
		Setter: recordingSetter(&log, "tx"),
	})
	qt.Assert(t, ds.Write("price", int64(150)), qt.IsNil)
	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Assert(t, err, qt.IsNil)

	// A newer local write lands between prepare and confirm.
	qt.Assert(t, ds.Write("price", int64(175)), qt.IsNil)
	ds.ConfirmCommit(ops[0])

	dirty, _ := ds.IsDirty("price")
	qt.Check(t, dirty, qt.IsTrue)
	v, _ := ds.Read(context.Background(), "price")
	qt.Check(t, v, qt.Equals, int64(175))
}

func TestCommitSetterFailureKeepsEverythingDirty(t *testing.T) {
	var calls int32
	ds := deployed(t, dataset.FieldSpec{
		Name: "price", Getter: countingGetter(&calls, nil),
		Setter: func(ctx context.Context, dirty map[string]interface{}, opts dataset.WriteOptions) (interface{}, error) {
			return nil, fmt.Errorf("gas estimation failed")
		},
	})
	qt.Assert(t, ds.Write("price", int64(150)), qt.IsNil)

	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeRemoteWrite)
	qt.Check(t, ops, qt.IsNil)
	dirty, _ := ds.IsDirty("price")
	qt.Check(t, dirty, qt.IsTrue)
}

func TestCommitLifecycleGates(t *testing.T) {
	var calls int32
	var log []map[string]interface{}
	ds, err := dataset.New(dataset.FieldSpec{
		Name: "price", Getter: countingGetter(&calls, nil),
		Setter: recordingSetter(&log, "tx"),
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ds.Write("price", int64(150)), qt.IsNil)

	_, err = ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeNotDeployed)

	qt.Assert(t, ds.MarkDeployed(), qt.IsNil)
	qt.Assert(t, ds.MarkObsolete(), qt.IsNil)
	_, err = ds.Commit(context.Background(), dataset.WriteOptions{})
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeObsolete)
	qt.Check(t, log, qt.HasLen, 0)
}

// The canonical usage story: fetch once, overwrite locally, read the local
// value with no refetch, commit, confirm, and end clean.
func TestPriceScenario(t *testing.T) {
	var fetches int32
	var log []map[string]interface{}
	ds := deployed(t, dataset.FieldSpec{
		Name: "price", Getter: countingGetter(&fetches, int64(100)),
		Setter: recordingSetter(&log, "tx-1"),
	})

	v, err := ds.Read(context.Background(), "price")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, v, qt.Equals, int64(100))

	qt.Assert(t, ds.Write("price", int64(150)), qt.IsNil)
	v, err = ds.Read(context.Background(), "price")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, v, qt.Equals, int64(150))
	qt.Check(t, fetches, qt.Equals, int32(1))

	ops, err := ds.Commit(context.Background(), dataset.WriteOptions{From: "0xabc"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ops, qt.HasLen, 1)
	ds.ConfirmCommit(ops[0])

	dirty, _ := ds.IsDirty("price")
	qt.Check(t, dirty, qt.IsFalse)
	qt.Assert(t, log, qt.HasLen, 1)
	qt.Check(t, log[0], qt.DeepEquals, map[string]interface{}{"price": int64(150)})
}
