package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"tigertrust/internal/config"
	"tigertrust/internal/constants"
	"tigertrust/internal/domain"

	"github.com/valyala/fasthttp"
)

// RiskEngineClient talks to the off-chain risk engine that assigns scores. The scoring
// model lives there; this client only carries its verdict back.
type RiskEngineClient struct {
	baseURL string
	client  *fasthttp.Client
}

func NewRiskEngineClient(cfg *config.Config) *RiskEngineClient {
	return &RiskEngineClient{
		baseURL: strings.TrimRight(cfg.RiskEngineURL, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost:     constants.RiskEngineMaxConns,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: constants.RiskEngineIdleDuration,
		},
	}
}

type RecalculateRequest struct {
	Wallet string `json:"wallet"`
}

type RiskAssessment struct {
	Wallet       string         `json:"wallet"`
	Score        int            `json:"score"`
	Tier         string         `json:"tier"`
	FeaturesUsed map[string]any `json:"features_used,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (c *RiskEngineClient) Recalculate(ctx context.Context, wallet domain.Pubkey) (*RiskAssessment, error) {
	body, err := json.Marshal(RecalculateRequest{Wallet: wallet.String()})
	if err != nil {
		return nil, err
	}
	return doRequest[RiskAssessment](ctx, c, fasthttp.MethodPost, c.baseURL+"/risk/recalculate", body)
}

func doRequest[T any](ctx context.Context, client *RiskEngineClient, method, url string, body []byte) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error: %d: %s %s", resp.StatusCode(), apiErr.Error, apiErr.Detail)
		}
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
