package offchain_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/offchain"
	"github.com/moortools/moorage/pkg/tracing"
)

func TestRegistryLookup(t *testing.T) {
	mem := offchain.NewInMemory()
	reg := offchain.NewRegistry()
	reg.Register("MEM", mem)

	t.Run("schemes-are-case-insensitive", func(t *testing.T) {
		for _, scheme := range []string{"mem", "MEM", "Mem"} {
			a, err := reg.Lookup(scheme)
			qt.Assert(t, err, qt.IsNil)
			qt.Check(t, a, qt.Equals, offchain.Adapter(mem))
		}
	})
	t.Run("unknown-scheme", func(t *testing.T) {
		_, err := reg.Lookup("gopher")
		qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeUnknownScheme)
	})
	t.Run("reset-drops-everything", func(t *testing.T) {
		reg.Reset()
		_, err := reg.Lookup("mem")
		qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeUnknownScheme)
	})
}

func TestRegistrySchemes(t *testing.T) {
	mem := offchain.NewInMemory()
	reg := offchain.NewRegistry()
	reg.Register("mem", mem)
	reg.Register("file", mem)
	reg.Register("ipfs", mem)
	qt.Check(t, reg.Schemes(), qt.DeepEquals, []string{"file", "ipfs", "mem"})
}

func TestRegistryDownloadDispatches(t *testing.T) {
	mem := offchain.NewInMemory()
	mem.Put("mem://greeting", moapi.Document{"hello": "world"})
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, mem)

	doc, err := reg.Download(context.Background(), "mem://greeting")
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc["hello"], qt.Equals, "world")

	_, err = reg.Download(context.Background(), "s3://bucket/key")
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeUnknownScheme)
}

func TestRegistryDownloadSpansCarryScheme(t *testing.T) {
	mem := offchain.NewInMemory()
	mem.Put("mem://greeting", moapi.Document{"hello": "world"})
	reg := offchain.NewRegistry()
	reg.Register(offchain.InMemoryScheme, mem)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx := tracing.SetTracer(context.Background(), provider.Tracer("test"))

	_, err := reg.Download(ctx, "mem://greeting")
	qt.Assert(t, err, qt.IsNil)

	spans := recorder.Ended()
	qt.Assert(t, spans, qt.HasLen, 1)
	qt.Check(t, spans[0].Name(), qt.Equals, "offchain.download")
	qt.Check(t, spans[0].Attributes(), qt.Contains,
		attribute.String(tracing.AttrKeyMoorageScheme, "mem"))
}

func TestInMemoryRoundTrip(t *testing.T) {
	mem := offchain.NewInMemory()
	uri, err := mem.Upload(context.Background(), moapi.Document{"n": int64(1)})
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, uri.Scheme(), qt.Equals, offchain.InMemoryScheme)

	doc, err := mem.Download(context.Background(), uri)
	qt.Assert(t, err, qt.IsNil)
	qt.Check(t, doc["n"], qt.Equals, int64(1))
	qt.Check(t, mem.Downloads(uri), qt.Equals, 1)

	_, err = mem.Download(context.Background(), "mem://absent")
	qt.Check(t, serum.Code(err), qt.Equals, moapi.CodeRemoteRead)
}
