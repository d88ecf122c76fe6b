package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"tigertrust/internal/config"
	"tigertrust/internal/domain"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.HandlerFunc) *RiskEngineClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewRiskEngineClient(&config.Config{RiskEngineURL: ts.URL + "/"})
}

func TestRecalculate(t *testing.T) {
	wallet := domain.Pubkey{9, 31: 9}

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/risk/recalculate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req RecalculateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, wallet.String(), req.Wallet)

		_ = json.NewEncoder(w).Encode(RiskAssessment{
			Wallet:       req.Wallet,
			Score:        812,
			Tier:         "Platinum",
			FeaturesUsed: map[string]any{"repayment_ratio": 0.9},
		})
	})

	got, err := client.Recalculate(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet.String(), got.Wallet)
	assert.Equal(t, 812, got.Score)
	assert.Equal(t, "Platinum", got.Tier)
	assert.Equal(t, 0.9, got.FeaturesUsed["repayment_ratio"])
}

func TestRecalculateErrorBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"model unavailable","detail":"retry later"}`))
	})

	_, err := client.Recalculate(context.Background(), domain.Pubkey{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestRecalculatePlainError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	_, err := client.Recalculate(context.Background(), domain.Pubkey{1})
	assert.EqualError(t, err, "API error: 500")
}

func TestRecalculateHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Recalculate(ctx, domain.Pubkey{1})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
