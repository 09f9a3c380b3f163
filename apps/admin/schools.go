package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/apps"
	"github.com/trezcool/examreg/core/school"
)

func (cli *commandLine) addSchool(ctx context.Context, code, lga, name, typ string) error {
	app, err := cli.application(ctx)
	if err != nil {
		return err
	}

	ns := school.NewSchool{Name: name, Code: code, LGACode: lga, Type: typ}
	if err = app.Validate.Struct(ns); err != nil {
		return apps.NewArgumentError("", "invalid school: %v", err)
	}
	sch, err := app.Schools.Create(ctx, ns)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	fmt.Fprintf(cli.out, "school created: %s (%s/%s)\n", sch.ID, sch.LGACode, sch.Code)
	return nil
}

func (cli *commandLine) seedSchoolData(ctx context.Context) error {
	app, err := cli.application(ctx)
	if err != nil {
		return err
	}
	n, err := app.Schools.SeedData(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d school data entries inserted\n", n)
	return nil
}

func (cli *commandLine) release(ctx context.Context, on, off bool) error {
	app, err := cli.application(ctx)
	if err != nil {
		return err
	}
	if on || off {
		if err = app.Results.SetReleased(ctx, on); err != nil {
			return err
		}
	}
	released, set, err := app.Results.Released(ctx)
	if err != nil {
		return err
	}
	switch {
	case !set:
		fmt.Fprintln(cli.out, "results release: not set")
	case released:
		fmt.Fprintln(cli.out, "results release: on")
	default:
		fmt.Fprintln(cli.out, "results release: off (new results are blocked)")
	}
	return nil
}
