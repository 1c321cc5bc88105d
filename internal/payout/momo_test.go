package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salon-wallet/internal/util"
)

func newMoMoServer(t *testing.T, transferStatus int, statusBody string) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/disbursement/token/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, key, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api-user", user)
		assert.Equal(t, "api-key", key)
		assert.Equal(t, "sub-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"access_token","expires_in":3600}`))
	})
	mux.HandleFunc("/disbursement/v1_0/transfer", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "sandbox", r.Header.Get("X-Target-Environment"))
		assert.NotEmpty(t, r.Header.Get("X-Reference-Id"))

		var body momoTransfer
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2000", body.Amount)
		assert.Equal(t, "RWF", body.Currency)
		assert.Equal(t, "MSISDN", body.Payee.PartyIDType)
		assert.Equal(t, "250788123456", body.Payee.PartyID)
		w.WriteHeader(transferStatus)
	})
	mux.HandleFunc("/disbursement/v1_0/transfer/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/ref-1"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusBody))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newTestMoMo(url string) *MoMoGateway {
	return NewMoMoGateway(MoMoConfig{
		BaseURL:         url,
		APIUser:         "api-user",
		APIKey:          "api-key",
		SubscriptionKey: "sub-key",
		TargetEnv:       "sandbox",
	}, zap.NewNop())
}

func TestMoMoGatewayRequestPayout(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted transfer returns reference and caches token", func(t *testing.T) {
		srv, tokenCalls := newMoMoServer(t, http.StatusAccepted, `{}`)
		g := newTestMoMo(srv.URL)

		req := Request{PhoneNumber: "0788123456", Amount: decimal.NewFromInt(2000), Currency: "RWF", ExternalID: "wd-1"}
		receipt, err := g.RequestPayout(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, receipt.ReferenceID)

		_, err = g.RequestPayout(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls))
	})

	t.Run("rejected transfer wraps gateway error", func(t *testing.T) {
		srv, _ := newMoMoServer(t, http.StatusConflict, `{}`)
		g := newTestMoMo(srv.URL)

		_, err := g.RequestPayout(ctx, Request{PhoneNumber: "0788123456", Amount: decimal.NewFromInt(2000), Currency: "RWF"})
		assert.ErrorIs(t, err, util.ErrGateway)
	})

	t.Run("invalid number never reaches the provider", func(t *testing.T) {
		srv, tokenCalls := newMoMoServer(t, http.StatusAccepted, `{}`)
		g := newTestMoMo(srv.URL)

		_, err := g.RequestPayout(ctx, Request{PhoneNumber: "0728123456", Amount: decimal.NewFromInt(2000)})
		assert.ErrorIs(t, err, util.ErrGateway)
		assert.Equal(t, int32(0), atomic.LoadInt32(tokenCalls))
	})
}

func TestMoMoGatewayCheckPayoutStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		body   string
		status Status
		reason string
		ftxID  string
	}{
		{"successful", `{"status":"SUCCESSFUL","financialTransactionId":"FT-9"}`, StatusSuccessful, "", "FT-9"},
		{"failed with string reason", `{"status":"FAILED","reason":"PAYEE_NOT_FOUND"}`, StatusFailed, "PAYEE_NOT_FOUND", ""},
		{"failed with object reason", `{"status":"FAILED","reason":{"code":"NOT_ENOUGH_FUNDS","message":"Not enough funds"}}`, StatusFailed, "Not enough funds", ""},
		{"pending", `{"status":"PENDING"}`, StatusPending, "", ""},
		{"unknown status treated as pending", `{"status":"ONGOING"}`, StatusPending, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newMoMoServer(t, http.StatusAccepted, tt.body)
			g := newTestMoMo(srv.URL)

			res, err := g.CheckPayoutStatus(ctx, "ref-1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.ftxID, res.ProviderTransactionID)
		})
	}
}
