package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

var urlFlag = cli.StringFlag{
	Name:    "url",
	Usage:   "base url of the pricestreamd daemon",
	Value:   "http://localhost:8080",
	EnvVars: []string{"PRICESTREAM_URL"},
}

func main() {
	app := newApp(os.Stdout)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()

	app.Version = "0.0.1"
	app.Name = "pricestream"
	app.Usage = "Command line interface for pricestreamd clients and operators"
	app.Writer = out
	app.Flags = []cli.Flag{&urlFlag}
	app.Commands = append(
		app.Commands,
		&instruments,
		&price,
		&subscriptions,
		&watch,
	)
	return app
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[pricestream] %v\n", err)
	}
	os.Exit(1)
}
