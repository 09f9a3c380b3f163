package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/examreg/apps"
	"github.com/trezcool/examreg/core/export"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = term.IsTerminal   // mockable
)

type exportOptions struct {
	url              string
	token            string
	out              string
	search           string
	lga              string
	schoolCode       string
	registrationType string
}

func (cli *commandLine) export(ctx context.Context, opts exportOptions) error {
	f, err := export.NewFilter(opts.search, opts.lga, opts.schoolCode, opts.registrationType)
	if err != nil {
		return apps.NewArgumentError("type", "%v", err)
	}

	if opts.token == "" {
		fmt.Fprint(cli.out, "Enter API token:")
		tkn, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		opts.token = strings.TrimSpace(string(tkn))
		if opts.token == "" {
			return apps.NewArgumentError("token", "is required")
		}
	}

	file, err := os.Create(opts.out)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer file.Close()

	client := export.NewClient(opts.url, opts.token, nil)
	interactive := isTerminalFunc(int(os.Stdout.Fd()))
	client.Progress = func(exported, total int) {
		if interactive {
			fmt.Fprintf(cli.out, "\rexported %d/%d", exported, total)
		}
	}

	n, err := client.Export(ctx, file, f)
	if interactive {
		fmt.Fprintln(cli.out)
	}
	if err != nil {
		var fetchErr *export.ExportFetchError
		if errors.As(err, &fetchErr) {
			fmt.Fprintf(cli.out, "partial export kept in %s\n", opts.out)
		}
		return err
	}
	if err = file.Sync(); err != nil {
		return errors.Wrap(err, "writing output file")
	}
	fmt.Fprintf(cli.out, "%d records exported to %s\n", n, opts.out)
	return nil
}
