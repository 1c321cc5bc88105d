package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"salon-wallet/internal/util"
)

const (
	momoTokenPath    = "/disbursement/token/"
	momoTransferPath = "/disbursement/v1_0/transfer"
)

// MoMoConfig holds the disbursement API credentials.
type MoMoConfig struct {
	BaseURL         string
	APIUser         string
	APIKey          string
	SubscriptionKey string
	TargetEnv       string
	Timeout         time.Duration
	Plan            NumberPlan
}

// MoMoGateway talks to the MTN MoMo disbursement API.
type MoMoGateway struct {
	cfg    MoMoConfig
	client *resty.Client
	logger *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type momoToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type momoParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type momoTransfer struct {
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	ExternalID   string    `json:"externalId"`
	Payee        momoParty `json:"payee"`
	PayerMessage string    `json:"payerMessage"`
	PayeeNote    string    `json:"payeeNote"`
}

type momoTransferStatus struct {
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason,omitempty"`
	FinancialTransactionID string          `json:"financialTransactionId"`
}

// NewMoMoGateway creates a MoMo disbursement client.
func NewMoMoGateway(cfg MoMoConfig, logger *zap.Logger) *MoMoGateway {
	if cfg.Plan.CountryCode == "" {
		cfg.Plan = MTNRwanda
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Ocp-Apim-Subscription-Key", cfg.SubscriptionKey)

	return &MoMoGateway{cfg: cfg, client: client, logger: logger}
}

func (g *MoMoGateway) Name() string { return "mtn-momo" }

func (g *MoMoGateway) ValidateNumber(phoneNumber string) bool { return g.cfg.Plan.Validate(phoneNumber) }

func (g *MoMoGateway) FormatNumber(phoneNumber string) string { return g.cfg.Plan.Format(phoneNumber) }

// accessToken returns a cached bearer token, refreshing it a minute before expiry.
func (g *MoMoGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	var tok momoToken
	resp, err := g.client.R().
		SetContext(ctx).
		SetBasicAuth(g.cfg.APIUser, g.cfg.APIKey).
		SetResult(&tok).
		Post(momoTokenPath)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", util.ErrGateway, err)
	}
	if resp.StatusCode() != http.StatusOK || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token request returned %d", util.ErrGateway, resp.StatusCode())
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	g.token = tok.AccessToken
	g.tokenExpiry = time.Now().Add(ttl)
	return g.token, nil
}

// RequestPayout submits a transfer. The provider answers 202 and the outcome
// must be polled with CheckPayoutStatus.
func (g *MoMoGateway) RequestPayout(ctx context.Context, req Request) (*Receipt, error) {
	if !g.cfg.Plan.Validate(req.PhoneNumber) {
		return nil, fmt.Errorf("%w: invalid payee number %q", util.ErrGateway, req.PhoneNumber)
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	ref := uuid.NewString()
	body := momoTransfer{
		Amount:       req.Amount.String(),
		Currency:     req.Currency,
		ExternalID:   req.ExternalID,
		Payee:        momoParty{PartyIDType: "MSISDN", PartyID: g.cfg.Plan.Format(req.PhoneNumber)},
		PayerMessage: req.Message,
		PayeeNote:    req.Message,
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Reference-Id", ref).
		SetHeader("X-Target-Environment", g.cfg.TargetEnv).
		SetBody(body).
		Post(momoTransferPath)
	if err != nil {
		return nil, fmt.Errorf("%w: transfer request failed: %v", util.ErrGateway, err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		g.logger.Warn("MoMo transfer rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("external_id", req.ExternalID),
			zap.ByteString("body", resp.Body()))
		return nil, fmt.Errorf("%w: transfer returned %d", util.ErrGateway, resp.StatusCode())
	}

	return &Receipt{ReferenceID: ref}, nil
}

// CheckPayoutStatus queries the transfer by its X-Reference-Id.
func (g *MoMoGateway) CheckPayoutStatus(ctx context.Context, referenceID string) (*Result, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var st momoTransferStatus
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Target-Environment", g.cfg.TargetEnv).
		SetPathParam("ref", referenceID).
		SetResult(&st).
		Get(momoTransferPath + "/{ref}")
	if err != nil {
		return nil, fmt.Errorf("%w: status request failed: %v", util.ErrGateway, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status request returned %d", util.ErrGateway, resp.StatusCode())
	}

	res := &Result{
		Status:                Status(strings.ToUpper(st.Status)),
		ProviderTransactionID: st.FinancialTransactionID,
		Reason:                momoReason(st.Reason),
	}
	if !res.Status.IsFinal() {
		res.Status = StatusPending
	}
	return res, nil
}

// momoReason accepts both a bare string and a {code, message} object.
func momoReason(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Code
	}
	return string(raw)
}
