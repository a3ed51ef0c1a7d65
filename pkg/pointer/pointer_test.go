package pointer_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/offchain"
	"github.com/moortools/moorage/pkg/pointer"
)

// indexSchema declares one nested pointer field ("rooms") below "index".
func indexSchema() moapi.Schema {
	return moapi.Schema{Fields: []moapi.SchemaField{
		{Name: "name"},
		{Name: "index", Pointer: &moapi.Schema{Fields: []moapi.SchemaField{
			{Name: "rooms", Pointer: &moapi.Schema{}},
		}}},
	}}
}

// seedGraph stores a three-level document graph and returns the store.
func seedGraph(t *testing.T) (*offchain.InMemory, *offchain.Registry) {
	t.Helper()
	mem := offchain.NewInMemory()
	mem.Put("mem://rooms", moapi.Document{"count": int64(4)})
	mem.Put("mem://index", moapi.Document{"rooms": "mem://rooms", "floors": int64(2)})
	mem.Put("mem://hotel", moapi.Document{"name": "Driftwood", "index": "mem://index"})
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, mem)
	return mem, reg
}

func TestNewIsLazy(t *testing.T) {
	mem, reg := seedGraph(t)
	p, err := pointer.New("mem://hotel", indexSchema(), reg)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, p.Ref(), qt.Equals, moapi.URI("mem://hotel"))
	qt.Check(t, mem.Downloads("mem://hotel"), qt.Equals, 0)
}

func TestNewRejectsMalformedURI(t *testing.T) {
	_, reg := seedGraph(t)
	_, err := pointer.New("not a uri", moapi.Schema{}, reg)
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeInvalid)
}

func TestContentsResolvesAndMemoizes(t *testing.T) {
	mem, reg := seedGraph(t)
	p, err := pointer.New("mem://hotel", indexSchema(), reg)
	qt.Assert(t, err, qt.IsNil)

	doc, err := p.Contents(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc["name"], qt.Equals, "Driftwood")

	// The declared pointer field comes back wrapped, unresolved.
	child, ok := doc["index"].(*pointer.Pointer)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Check(t, child.Ref(), qt.Equals, moapi.URI("mem://index"))
	qt.Check(t, mem.Downloads("mem://hotel"), qt.Equals, 1)
	qt.Check(t, mem.Downloads("mem://index"), qt.Equals, 0)

	_, err = p.Contents(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, mem.Downloads("mem://hotel"), qt.Equals, 1)
}

func TestContentsUndeclaredFieldsPassThrough(t *testing.T) {
	_, reg := seedGraph(t)
	// An empty schema declares nothing; every field is raw.
	p, err := pointer.New("mem://index", moapi.Schema{}, reg)
	qt.Assert(t, err, qt.IsNil)
	doc, err := p.Contents(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc["rooms"], qt.Equals, "mem://rooms")
	qt.Check(t, doc["floors"], qt.Equals, int64(2))
}

// blockingAdapter delegates to an inner adapter after waiting for release,
// counting the downloads it let through.
type blockingAdapter struct {
	inner   offchain.Adapter
	release chan struct{}
	calls   int32
}

func (a *blockingAdapter) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	atomic.AddInt32(&a.calls, 1)
	<-a.release
	return a.inner.Download(ctx, uri)
}

func (a *blockingAdapter) Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error) {
	return a.inner.Upload(ctx, doc)
}

func TestConcurrentResolvesCoalesce(t *testing.T) {
	const callers = 8
	mem, _ := seedGraph(t)
	gate := &blockingAdapter{inner: mem, release: make(chan struct{})}
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, gate)

	p, err := pointer.New("mem://hotel", indexSchema(), reg)
	qt.Assert(t, err, qt.IsNil)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Contents(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	qt.Check(t, gate.calls, qt.Equals, int32(1))
	for i := 0; i < callers; i++ {
		qt.Check(t, errs[i], qt.IsNil)
	}
}

func TestFailedResolveIsRetriable(t *testing.T) {
	mem := offchain.NewInMemory()
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, mem)

	p, err := pointer.New("mem://late", moapi.Schema{}, reg)
	qt.Assert(t, err, qt.IsNil)

	_, err = p.Contents(context.Background())
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeRemoteRead)

	// The document shows up afterwards; nothing poisoned the pointer.
	mem.Put("mem://late", moapi.Document{"ok": true})
	doc, err := p.Contents(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc["ok"], qt.Equals, true)
	qt.Check(t, mem.Downloads("mem://late"), qt.Equals, 2)
}

func TestUnknownScheme(t *testing.T) {
	reg := offchain.NewRegistry()
	p, err := pointer.New("gopher://old", moapi.Schema{}, reg)
	qt.Assert(t, err, qt.IsNil)
	_, err = p.Contents(context.Background())
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeUnknownScheme)
}

func TestSchemaResolutionErrors(t *testing.T) {
	for _, tt := range []struct {
		testCase string
		value    interface{}
	}{
		{testCase: "pointer field holds a non-string", value: int64(42)},
		{testCase: "pointer field holds a malformed uri", value: "no scheme here"},
	} {
		t.Run(tt.testCase, func(t *testing.T) {
			mem := offchain.NewInMemory()
			mem.Put("mem://doc", moapi.Document{"index": tt.value})
			reg := offchain.NewRegistry()
			reg.Register(offchain.InMemoryScheme, mem)

			p, err := pointer.New("mem://doc", indexSchema(), reg)
			qt.Assert(t, err, qt.IsNil)
			_, err = p.Contents(context.Background())
			qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeSchemaResolution)
		})
	}
}

func TestAbsentPointerFieldIsSkipped(t *testing.T) {
	mem := offchain.NewInMemory()
	mem.Put("mem://doc", moapi.Document{"name": "bare"})
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, mem)

	p, err := pointer.New("mem://doc", indexSchema(), reg)
	qt.Assert(t, err, qt.IsNil)
	doc, err := p.Contents(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc["name"], qt.Equals, "bare")
	_, present := doc["index"]
	qt.Check(t, present, qt.IsFalse)
}

func TestDepthBudgetBreaksCycles(t *testing.T) {
	mem := offchain.NewInMemory()
	// a and b point at each other; full materialization must fail loudly
	// rather than loop.
	cyclic := moapi.Schema{Fields: []moapi.SchemaField{{Name: "next"}}}
	cyclic.Fields[0].Pointer = &cyclic
	mem.Put("mem://a", moapi.Document{"next": "mem://b"})
	mem.Put("mem://b", moapi.Document{"next": "mem://a"})
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, mem)

	p, err := pointer.New("mem://a", cyclic, reg)
	qt.Assert(t, err, qt.IsNil)
	_, err = p.ToPlainObject(context.Background())
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeDepthExceeded)
}
