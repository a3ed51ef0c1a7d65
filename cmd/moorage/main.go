package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/moortools/moorage/moapi"
)

const VERSION = "v0.1.0"

// The module name used for unique strings, such as tracing identifiers.
const MODULE = "github.com/moortools/moorage"

func makeApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "moorage"
	app.Version = VERSION
	app.Usage = "Inspect ledger-anchored off-chain document graphs."
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Reader = stdin
	cli.VersionFlag = &cli.BoolFlag{
		Name: "version",
	}
	app.HideVersion = true
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
		},
		&cli.BoolFlag{
			Name: "quiet",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Enable JSON API output",
		},
		&cli.StringFlag{
			Name:      "trace.file",
			Usage:     "Enable tracing and emit output to file",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:  "trace.http.enable",
			Usage: "Enable remote tracing over http",
		},
		&cli.BoolFlag{
			Name:  "trace.http.insecure",
			Usage: "Allows insecure http",
		},
		&cli.StringFlag{
			Name:  "trace.http.endpoint",
			Usage: "Sets an endpoint for remote open-telemetry tracing collection",
		},
	}
	app.ExitErrHandler = exitErrHandler
	app.After = afterFunc
	app.Commands = []*cli.Command{
		&resolveCmdDef,
		&schemesCmdDef,
	}
	return app
}

// Called after a command returns an non-nil error value.
// Prints the formatted error to stderr.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	if c.Bool("json") {
		bytes, err := json.Marshal(err)
		if err != nil {
			panic("error marshaling json")
		}
		fmt.Fprintf(c.App.ErrWriter, "%s\n", string(bytes))
	} else {
		fmt.Fprintf(c.App.ErrWriter, "error: %s\n", err)
	}
}

// Called after any command completes. The command may optionally set
// c.App.Metadata["result"] to a moapi.Document value before returning to
// have the result printed to stdout as canonical JSON.
func afterFunc(c *cli.Context) error {
	if c.App.Metadata["result"] != nil {
		doc, ok := c.App.Metadata["result"].(moapi.Document)
		if !ok {
			panic("invalid result value - not a moapi.Document")
		}
		serial, err := moapi.EncodeDocument(doc)
		if err != nil {
			panic("failed to serialize output")
		}
		fmt.Fprintf(c.App.Writer, "%s\n", serial)
	}
	return nil
}

func main() {
	err := makeApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		os.Exit(1)
	}
}
