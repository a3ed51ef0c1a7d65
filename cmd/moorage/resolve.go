package main

import (
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/urfave/cli/v2"
	"github.com/warpfork/go-fsx/osfs"

	"github.com/moortools/moorage/moapi"
	"github.com/moortools/moorage/pkg/logging"
	"github.com/moortools/moorage/pkg/offchain"
	"github.com/moortools/moorage/pkg/pointer"
)

var resolveCmdDef = cli.Command{
	Name:      "resolve",
	Usage:     "Resolve a document graph starting at a URI and print it",
	ArgsUsage: "[uri]",
	Description: heredoc.Doc(`
		Downloads the document at the given URI, follows the storage
		pointers its schema declares, and prints the materialized result
		as canonical JSON.

		By default every declared pointer is resolved recursively.  Give
		one or more --path flags (dot-separated field paths) to resolve
		only the branches you need; everything off those paths is printed
		as an unresolved {"ref": ...} stub and never fetched.
	`),
	Action: chainCmdMiddleware(cmdResolve,
		cmdMiddlewareLogging,
		cmdMiddlewareTracingConfig,
		cmdMiddlewareTracingSpan,
	),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:      "schema",
			Usage:     "Path to a schema document declaring which fields are storage pointers",
			TakesFile: true,
		},
		&cli.StringSliceFlag{
			Name:  "path",
			Usage: "Resolve only this dot-separated field path (repeatable)",
		},
		&cli.StringFlag{
			Name:  "ipfs.gateway",
			Usage: "HTTP gateway used for ipfs:// documents",
			Value: offchain.DefaultIPFSGateway,
		},
		&cli.StringFlag{
			Name:  "file.root",
			Usage: "Filesystem root served for file:// documents",
			Value: "/",
		},
		&cli.StringFlag{
			Name:  "s3.region",
			Usage: "Enable s3:// documents, served from this AWS region",
		},
		&cli.StringFlag{
			Name:  "s3.endpoint",
			Usage: "Endpoint override for S3-compatible stores",
		},
	},
}

func cmdResolve(c *cli.Context) error {
	logger := logging.Ctx(c.Context)
	if c.Args().Len() != 1 {
		return moapi.ErrorInvalid("resolve takes exactly one URI argument")
	}

	schema := moapi.Schema{}
	if schemaPath := c.String("schema"); schemaPath != "" {
		raw, err := os.ReadFile(schemaPath)
		if err != nil {
			return moapi.ErrorInvalid("cannot read schema file",
				[2]string{"path", schemaPath})
		}
		schemaDoc, err := moapi.DecodeDocument(raw)
		if err != nil {
			return err
		}
		schema, err = moapi.SchemaFromDocument(schemaDoc)
		if err != nil {
			return err
		}
	}

	reg, err := newRegistry(c)
	if err != nil {
		return err
	}
	logger.Debug("resolve", "registered schemes: %v", reg.Schemes())

	ptr, err := pointer.New(c.Args().First(), schema, reg)
	if err != nil {
		return err
	}
	doc, err := ptr.ToPlainObject(c.Context, c.StringSlice("path")...)
	if err != nil {
		return err
	}
	c.App.Metadata["result"] = doc
	return nil
}

// newRegistry builds the adapter registry the CLI serves documents from.
// The s3 scheme is only registered when a region is configured; loading
// AWS configuration is not free and most invocations never touch s3.
func newRegistry(c *cli.Context) (*offchain.Registry, error) {
	reg := offchain.NewRegistry()
	httpAdapter := offchain.NewHTTPFetch()
	reg.Register("http", httpAdapter)
	reg.Register("https", httpAdapter)
	reg.Register("ipfs", offchain.NewIPFSGateway(c.String("ipfs.gateway")))
	reg.Register("file", offchain.NewFSDoc(osfs.DirFS(c.String("file.root")), "."))
	if region := c.String("s3.region"); region != "" {
		s3Adapter, err := offchain.NewS3(c.Context, offchain.S3Config{
			Region:   region,
			Endpoint: c.String("s3.endpoint"),
		})
		if err != nil {
			return nil, err
		}
		reg.Register("s3", s3Adapter)
	}
	return reg, nil
}
