// Khwaaish - conversational shopping front end
// License: MIT
//
// Copyright (c) 2026 Khwaaish contributors

package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"khwaaish/pkg/config"
	"khwaaish/pkg/logger"
)

// Caller is the integration boundary the flow controller depends on.
type Caller interface {
	Retailer() string
	Call(ctx context.Context, op Operation, payload map[string]interface{}) (Response, error)
}

type Client struct {
	retailer   Retailer
	apiBase    string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient builds a client for one retailer. A zero timeout leaves requests
// unbounded; a nil limiter disables rate limiting.
func NewClient(retailer Retailer, apiBase string, timeout time.Duration, limiter *rate.Limiter) *Client {
	return &Client{
		retailer: retailer,
		apiBase:  strings.TrimRight(apiBase, "/"),
		timeout:  timeout,
		limiter:  limiter,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientFromConfig applies the per-retailer base URL, timeout and rate
// limit from cfg.
func NewClientFromConfig(cfg *config.Config, retailer Retailer) *Client {
	var limiter *rate.Limiter
	if perSec := cfg.RetailerRateLimit(retailer.Name); perSec > 0 {
		burst := cfg.API.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	timeout := time.Duration(cfg.RetailerTimeoutSec(retailer.Name)) * time.Second
	return NewClient(retailer, cfg.RetailerBase(retailer.Name), timeout, limiter)
}

func (c *Client) Retailer() string {
	return c.retailer.Name
}

func (c *Client) Call(ctx context.Context, op Operation, payload map[string]interface{}) (Response, error) {
	ep, ok := c.retailer.Endpoint(op)
	if !ok {
		return Response{}, fmt.Errorf("%s %s: %w", c.retailer.Name, op, ErrUnsupported)
	}
	if c.apiBase == "" {
		return Response{}, fmt.Errorf("API base not configured for %s", c.retailer.Name)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := c.newRequest(ctx, ep, payload)
	if err != nil {
		return Response{}, err
	}

	logger.DebugCF("automation", "Automation request", map[string]interface{}{
		logger.FieldRetailer:  c.retailer.Name,
		logger.FieldOperation: string(op),
		"method":              ep.Method,
		"path":                ep.Path,
		"timeout":             c.timeout.String(),
	})

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	out := NewResponse(resp.StatusCode, body)
	logger.DebugCF("automation", "Automation response", map[string]interface{}{
		logger.FieldRetailer:       c.retailer.Name,
		logger.FieldOperation:      string(op),
		logger.FieldStatus:         resp.StatusCode,
		logger.FieldResponseLength: len(body),
		"elapsed":                  time.Since(started).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &APIError{
			Retailer:  c.retailer.Name,
			Operation: op,
			Status:    resp.StatusCode,
			Response:  out,
		}
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, ep Endpoint, payload map[string]interface{}) (*http.Request, error) {
	target := c.apiBase + ep.Path

	if ep.Method == http.MethodGet {
		if len(payload) > 0 {
			q := url.Values{}
			for k, v := range payload {
				q.Set(k, fmt.Sprint(v))
			}
			target += "?" + q.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}
