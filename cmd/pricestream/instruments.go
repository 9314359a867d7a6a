package main

import "github.com/urfave/cli/v2"

var instruments = cli.Command{
	Name:   "instruments",
	Usage:  "list the instruments supported by the price source",
	Action: instrumentsAction,
}

func instrumentsAction(ctx *cli.Context) error {
	resp, err := getJSON(ctx, "/instruments")
	if err != nil {
		return err
	}
	return printRespJSON(ctx, resp)
}
