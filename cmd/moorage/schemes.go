package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var schemesCmdDef = cli.Command{
	Name:  "schemes",
	Usage: "List the URI schemes this build can serve",
	Action: chainCmdMiddleware(cmdSchemes,
		cmdMiddlewareLogging,
	),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:   "ipfs.gateway",
			Hidden: true,
			Value:  "",
		},
		&cli.StringFlag{
			Name:   "file.root",
			Hidden: true,
			Value:  "/",
		},
		&cli.StringFlag{
			Name:   "s3.region",
			Hidden: true,
		},
		&cli.StringFlag{
			Name:   "s3.endpoint",
			Hidden: true,
		},
	},
}

func cmdSchemes(c *cli.Context) error {
	fmtBold := color.New(color.Bold)
	reg, err := newRegistry(c)
	if err != nil {
		return err
	}
	for _, scheme := range reg.Schemes() {
		fmtBold.Fprintf(c.App.Writer, "%s://\n", scheme)
	}
	if c.Bool("verbose") {
		fmt.Fprintf(c.App.Writer, "\n%d schemes registered\n", len(reg.Schemes()))
	}
	return nil
}
