package main

import (
	"net/url"

	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/urfave/cli/v2"
)

var price = cli.Command{
	Name:      "price",
	Usage:     "get the latest price of an instrument",
	ArgsUsage: "<symbol>",
	Action:    priceAction,
}

func priceAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "price"}
	}
	symbol, err := domain.ParseSymbol(ctx.Args().First())
	if err != nil {
		return err
	}

	resp, err := getJSON(ctx, "/price/"+url.PathEscape(symbol.String()))
	if err != nil {
		return err
	}
	return printRespJSON(ctx, resp)
}
