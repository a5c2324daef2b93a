package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"freight-cloud/internal/apperror"
)

// Client fetches the latest exchange rates from the rate source.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a rate source client.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("currency: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// RatesResponse is the rate source payload.
type RatesResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Latest fetches the current rates for a base currency.
func (c *Client) Latest(ctx context.Context, base string) (RatesResponse, error) {
	if base == "" {
		return RatesResponse{}, errors.New("currency: empty base currency")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, nil)
	if err != nil {
		return RatesResponse{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return RatesResponse{}, apperror.Wrap(apperror.KindUpstream, "currency: rate source unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return RatesResponse{}, apperror.New(apperror.KindUpstream,
			fmt.Sprintf("currency: rate source http %d", resp.StatusCode))
	}

	var payload RatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RatesResponse{}, apperror.Wrap(apperror.KindUpstream, "currency: malformed rate payload", err)
	}
	if len(payload.Rates) == 0 {
		return RatesResponse{}, apperror.New(apperror.KindUpstream, "currency: empty rate payload")
	}
	return payload, nil
}
