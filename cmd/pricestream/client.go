package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

const requestTimeout = 15 * time.Second

var httpClient = &http.Client{Timeout: requestTimeout}

type errorResponse struct {
	Error string `json:"error"`
}

func baseURL(ctx *cli.Context) (*url.URL, error) {
	u, err := url.Parse(ctx.String(urlFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid daemon url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("daemon url must be either http or https")
	}
	return u, nil
}

// getJSON makes a GET request to the daemon and returns the raw JSON body of
// a successful response.
func getJSON(ctx *cli.Context, path string) ([]byte, error) {
	u, err := baseURL(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSuffix(u.String(), "/") + path

	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		errResp := errorResponse{}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s", errResp.Error)
		}
		return nil, fmt.Errorf("daemon replied with status %d", resp.StatusCode)
	}
	return body, nil
}

func printRespJSON(ctx *cli.Context, resp []byte) error {
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, resp, "", "\t"); err != nil {
		return fmt.Errorf("unable to decode response: %w", err)
	}
	_, err := fmt.Fprintln(ctx.App.Writer, buf.String())
	return err
}
