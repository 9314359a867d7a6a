package main

import "github.com/urfave/cli/v2"

var subscriptions = cli.Command{
	Name:   "subscriptions",
	Usage:  "list the subscribed symbols with their number of subscribers",
	Action: subscriptionsAction,
}

func subscriptionsAction(ctx *cli.Context) error {
	resp, err := getJSON(ctx, "/subscriptions")
	if err != nil {
		return err
	}
	return printRespJSON(ctx, resp)
}
