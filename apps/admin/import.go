package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/apps"
	"github.com/trezcool/examreg/core/csvio"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/registration"
)

const (
	kindResults       = "results"
	kindRegistrations = "registrations"
)

type importOptions struct {
	kind             string
	file             string
	schoolID         string
	registrationType string
	override         bool
	quiet            bool
}

func (cli *commandLine) importFile(ctx context.Context, opts importOptions) error {
	if opts.kind != kindResults && opts.kind != kindRegistrations {
		return apps.NewArgumentError("kind", "must be %q or %q (got %q)", kindResults, kindRegistrations, opts.kind)
	}
	var req registration.ImportRequest
	if opts.kind == kindRegistrations {
		if opts.schoolID == "" {
			return apps.NewArgumentError("school", "is required for registrations")
		}
		p, err := registration.ParsePartition(opts.registrationType)
		if err != nil {
			return apps.NewArgumentError("type", "%v", err)
		}
		req = registration.ImportRequest{SchoolID: opts.schoolID, Partition: p, Override: opts.override}
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer f.Close()
	tbl, err := csvio.Parse(f)
	if err != nil {
		return err
	}

	app, err := cli.application(ctx)
	if err != nil {
		return err
	}

	sink := ingest.Discard
	if !opts.quiet {
		sink = ingest.SinkFunc(cli.printEvent)
	}
	var summary ingest.Summary
	if opts.kind == kindResults {
		summary, err = app.Results.Import(ctx, tbl, sink)
	} else {
		summary, err = app.Registrations.Import(ctx, req, tbl, sink)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cli.out, summary.Message)
	fmt.Fprintf(cli.out, "created=%d accepted=%d rejected=%d skipped=%d failedChunks=%d\n",
		summary.Created, summary.Accepted, len(summary.Errors), summary.Skipped, summary.FailedChunks)
	if !summary.Success {
		return errors.New("import failed")
	}
	return nil
}

func (cli *commandLine) printEvent(e ingest.Event) error {
	if e.Phase == ingest.PhaseComplete {
		return nil
	}
	fmt.Fprintf(cli.out, "[%3d%%] %s\n", e.Progress, e.Message)
	return nil
}
