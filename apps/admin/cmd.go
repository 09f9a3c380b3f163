package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/examreg/apps"
	"github.com/trezcool/examreg/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	db     *sqlx.DB
	out    io.Writer

	app *apps.App // built on first use, after migrating
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                      - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addschool -code CODE -lga LGA -name NAME    - register a school")
	fmt.Fprintln(cli.out, "  seedschooldata                              - copy the bundled school dataset into the database")
	fmt.Fprintln(cli.out, "  release [-on|-off]                          - show or toggle the results release setting")
	fmt.Fprintln(cli.out, "  import -kind KIND -file FILE                - import a results or registrations CSV")
	fmt.Fprintln(cli.out, "  token -sub SUBJECT [-school ID|-admin]      - issue an API token")
	fmt.Fprintln(cli.out, "  export -url URL -out FILE                   - download a student export through the chunked API")
}

func (cli *commandLine) application(ctx context.Context) (*apps.App, error) {
	if cli.app != nil {
		return cli.app, nil
	}
	if err := migrateFunc(cli.db); err != nil {
		return nil, err
	}
	app, err := apps.NewWithDB(ctx, cli.conf, cli.logger, cli.db)
	if err != nil {
		return nil, err
	}
	cli.app = app
	return app, nil
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "addschool":
		cmd := cli.newFlagSet("addschool")
		code := cmd.String("code", "", "The school code, unique within its LGA.")
		lga := cmd.String("lga", "", "The LGA code.")
		name := cmd.String("name", "", "The school name.")
		typ := cmd.String("type", "", "public (default) or private.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.addSchool(ctx, *code, *lga, *name, *typ)

	case "seedschooldata":
		return cli.seedSchoolData(ctx)

	case "release":
		cmd := cli.newFlagSet("release")
		on := cmd.Bool("on", false, "Release results: uploads are accepted.")
		off := cmd.Bool("off", false, "Withdraw results: new results are blocked.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *on && *off {
			return apps.NewArgumentError("on", "cannot be combined with -off")
		}
		return cli.release(ctx, *on, *off)

	case "import":
		cmd := cli.newFlagSet("import")
		var opts importOptions
		cmd.StringVar(&opts.kind, "kind", "", "results or registrations.")
		cmd.StringVar(&opts.file, "file", "", "Path of the CSV file.")
		cmd.StringVar(&opts.schoolID, "school", "", "Owner school ID (registrations only).")
		cmd.StringVar(&opts.registrationType, "type", "", "regular (default), late or post (registrations only).")
		cmd.BoolVar(&opts.override, "override", false, "Replace the school's existing registrations (registrations only).")
		cmd.BoolVar(&opts.quiet, "quiet", false, "Do not print progress.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if opts.kind == "" || opts.file == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.importFile(ctx, opts)

	case "token":
		cmd := cli.newFlagSet("token")
		sub := cmd.String("sub", "", "The token subject (user ID or name).")
		schoolID := cmd.String("school", "", "Restrict the token to one school.")
		admin := cmd.Bool("admin", false, "Grant admin rights.")
		ttl := cmd.Duration("ttl", 24*time.Hour, "Token lifetime.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sub == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.token(*sub, *schoolID, *admin, *ttl)

	case "export":
		cmd := cli.newFlagSet("export")
		var opts exportOptions
		cmd.StringVar(&opts.url, "url", "", "Base URL of the API, e.g. http://localhost:8000.")
		cmd.StringVar(&opts.token, "token", "", "Admin API token. Prompted when empty.")
		cmd.StringVar(&opts.out, "out", "", "Destination CSV file.")
		cmd.StringVar(&opts.search, "search", "", "Search student numbers and names.")
		cmd.StringVar(&opts.lga, "lga", "", "LGA code filter.")
		cmd.StringVar(&opts.schoolCode, "schoolcode", "", "School code filter.")
		cmd.StringVar(&opts.registrationType, "type", "", "all (default), regular, late or post.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if opts.url == "" || opts.out == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.export(ctx, opts)

	default:
		cli.printUsage()
		return errHelp
	}
}
