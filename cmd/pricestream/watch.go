package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/urfave/cli/v2"
)

var countFlag = cli.IntFlag{
	Name:  "count",
	Usage: "exit after receiving the given number of updates, 0 means never",
	Value: 0,
}

var watch = cli.Command{
	Name:      "watch",
	Usage:     "stream live prices of one or more instruments",
	ArgsUsage: "<symbol> [<symbol>...]",
	Flags:     []cli.Flag{&countFlag},
	Action:    watchAction,
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

func watchAction(ctx *cli.Context) error {
	symbols := domain.NormalizeSymbols(ctx.Args().Slice())
	if len(symbols) <= 0 {
		return &invalidUsageError{ctx, "watch"}
	}

	u, err := baseURL(ctx)
	if err != nil {
		return err
	}
	wsURL := *u
	wsURL.Scheme = "ws"
	if u.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/ws"

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(sigCtx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("unable to connect to daemon: %w", err)
	}
	defer conn.Close()

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, s.String())
	}
	if err := conn.WriteJSON(subscribeRequest{"SUBSCRIBE", params}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return readUpdates(sigCtx, ctx, conn, ctx.Int(countFlag.Name))
}

func readUpdates(
	sigCtx context.Context, ctx *cli.Context, conn *websocket.Conn, count int,
) error {
	go func() {
		<-sigCtx.Done()
		conn.Close()
	}()

	for received := 0; count <= 0 || received < count; received++ {
		update := domain.PriceUpdate{}
		if err := conn.ReadJSON(&update); err != nil {
			if sigCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection with daemon dropped: %w", err)
		}
		if err := printUpdate(ctx, update); err != nil {
			return err
		}
	}

	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return nil
}

func printUpdate(ctx *cli.Context, update domain.PriceUpdate) error {
	price, ts := "n/a", "n/a"
	if update.Price != nil {
		price = update.Price.String()
	}
	if update.Timestamp != nil {
		ts = update.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")
	}
	_, err := fmt.Fprintf(ctx.App.Writer, "%s\t%s\t%s\n", ts, update.Symbol, price)
	return err
}
