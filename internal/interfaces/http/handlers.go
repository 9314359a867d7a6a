package httpinterface

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/core/domain"
	"github.com/tdex-network/tdex-pricestream/internal/core/ports"
)

const (
	internalErrorMsg = "internal error"
	// priceLookupTimeout bounds a price lookup shared by concurrent requests.
	priceLookupTimeout = 15 * time.Second
)

type errorResponse struct {
	Error string `json:"error"`
}

type subscriptionInfo struct {
	Symbol      string `json:"symbol"`
	Subscribers int    `json:"subscribers"`
	FeedActive  bool   `json:"feed_active"`
}

func (s *service) handleHealth(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

func (s *service) handleListInstruments(c echo.Context) error {
	instruments, err := s.opts.PriceSource.ListInstruments(c.Request().Context())
	if err != nil {
		log.WithError(err).Warn("failed to list instruments")
		return echo.NewHTTPError(http.StatusNotFound, "instruments unavailable")
	}
	if len(instruments) <= 0 {
		return echo.NewHTTPError(http.StatusNotFound, "instruments unavailable")
	}
	return c.JSON(http.StatusOK, instruments)
}

func (s *service) handleGetPrice(c echo.Context) error {
	symbol, err := domain.ParseSymbol(c.Param("symbol"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Shared by concurrent requests for the same symbol, detached from all
	// of them.
	v, err, _ := s.prices.Do(symbol.String(), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(
			context.Background(), priceLookupTimeout,
		)
		defer cancel()
		return s.opts.PriceSource.GetLatestPrice(ctx, symbol)
	})
	if err != nil {
		if !errors.Is(err, ports.ErrPriceNotFound) &&
			!errors.Is(err, ports.ErrUnknownSymbol) {
			log.WithError(err).WithField("symbol", symbol).Warn(
				"failed to fetch latest price",
			)
		}
		return echo.NewHTTPError(http.StatusNotFound, "price unavailable")
	}

	price, _ := v.(*domain.PriceUpdate)
	if price == nil {
		return echo.NewHTTPError(http.StatusNotFound, "price unavailable")
	}
	return c.JSON(http.StatusOK, price)
}

func (s *service) handleListSubscriptions(c echo.Context) error {
	symbols := s.opts.Registry.Symbols()
	subs := make([]subscriptionInfo, 0, len(symbols))
	for _, symbol := range symbols {
		count := s.opts.Registry.Count(symbol)
		// Emptied between the two reads.
		if count <= 0 {
			continue
		}
		subs = append(subs, subscriptionInfo{
			Symbol:      symbol.String(),
			Subscribers: count,
			FeedActive:  s.opts.Feeds.IsActive(symbol),
		})
	}
	return c.JSON(http.StatusOK, subs)
}

// errorHandler replies with a JSON body for every error. Errors that are not
// an *echo.HTTPError, including recovered panics, never leak their message.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := internalErrorMsg

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		log.WithError(err).WithField("path", c.Path()).Warn(
			"unexpected error while serving request",
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorResponse{msg})
	}
	if err != nil {
		log.WithError(err).Debug("failed to write error response")
	}
}
