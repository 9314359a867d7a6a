package krakensource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

const (
	assetPairsPath = "/0/public/AssetPairs"
	tickerPath     = "/0/public/Ticker"
)

// restClient is a rate limited client for the kraken public REST api, whose
// requests are wrapped by a circuit breaker.
type restClient struct {
	*http.Client
	baseURL string
	limiter ratelimit.Limiter
	cb      *gobreaker.CircuitBreaker
}

func newRestClient(
	baseURL string, requestTimeout time.Duration, rate int,
	cb *gobreaker.CircuitBreaker,
) *restClient {
	return &restClient{
		Client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
		limiter: ratelimit.New(rate),
		cb:      cb,
	}
}

func (c *restClient) getAssetPairs(
	ctx context.Context,
) (map[string]assetPair, error) {
	resp, err := c.get(ctx, assetPairsPath, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	pairs := make(map[string]assetPair)
	if err := json.Unmarshal(resp.Result, &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse asset pairs: %w", err)
	}
	return pairs, nil
}

// getTicker returns the ticker of the given pair, or nil if the pair is
// unknown to kraken.
func (c *restClient) getTicker(
	ctx context.Context, pair string,
) (*tickerInfo, error) {
	resp, err := c.get(ctx, tickerPath, url.Values{"pair": []string{pair}})
	if err != nil {
		return nil, err
	}
	if resp.isUnknownPair() {
		return nil, nil
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	tickers := make(map[string]tickerInfo)
	if err := json.Unmarshal(resp.Result, &tickers); err != nil {
		return nil, fmt.Errorf("failed to parse ticker: %w", err)
	}
	// Kraken keys the result by its internal pair name, there's only one.
	for _, t := range tickers {
		ticker := t
		return &ticker, nil
	}
	return nil, nil
}

func (c *restClient) get(
	ctx context.Context, path string, query url.Values,
) (*restResponse, error) {
	c.limiter.Take()

	res, err := c.cb.Execute(func() (interface{}, error) {
		endpoint := c.baseURL + path
		if len(query) > 0 {
			endpoint = fmt.Sprintf("%s?%s", endpoint, query.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		rs, err := c.Do(req)
		if err != nil {
			return nil, err
		}
		defer rs.Body.Close()

		body, err := io.ReadAll(rs.Body)
		if err != nil {
			return nil, err
		}
		if rs.StatusCode != http.StatusOK {
			return nil, fmt.Errorf(
				"kraken: unexpected status %d: %s", rs.StatusCode, string(body),
			)
		}

		resp := &restResponse{}
		if err := json.Unmarshal(body, resp); err != nil {
			return nil, fmt.Errorf("kraken: invalid response: %w", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*restResponse), nil
}
