package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Charge status values reported by the gateway's verify endpoint.
const (
	ChargeStatusSuccess = "success"
	ChargeStatusFailed  = "failed"
	ChargeStatusPending = "pending"
)

type ChargeRequest struct {
	Amount            decimal.Decimal
	Currency          string
	CustomerEmail     string
	CustomerFirstName string
	CustomerLastName  string
	TxRef             string
	CallbackURL       string
	ReturnURL         string
	Description       string
}

type ChargeSession struct {
	TransactionID string
	CheckoutURL   string
}

type ChargeStatus struct {
	Status   string
	Amount   decimal.Decimal
	Currency string
}

// GatewayError wraps any failure talking to the payment gateway: transport
// errors, timeouts and explicit rejections alike. Callers that need to
// distinguish an explicit gateway-reported charge failure from a transport
// problem look at the ChargeStatus, not the error.
type GatewayError struct {
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Gateway is the charge initiation/verification contract the payment state
// machine consumes. Tests substitute a fake.
type Gateway interface {
	InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeSession, error)
	VerifyCharge(ctx context.Context, txRef string) (*ChargeStatus, error)
}

type GatewayConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// GatewayClient talks to the Chapa HTTP API. It is constructed once in main
// with explicit configuration and injected into the payment service; there is
// no process-wide instance.
type GatewayClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type chapaInitializePayload struct {
	Amount        string             `json:"amount"`
	Currency      string             `json:"currency"`
	Email         string             `json:"email"`
	FirstName     string             `json:"first_name"`
	LastName      string             `json:"last_name"`
	TxRef         string             `json:"tx_ref"`
	CallbackURL   string             `json:"callback_url"`
	ReturnURL     string             `json:"return_url"`
	Customization chapaCustomization `json:"customization"`
}

type chapaCustomization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type chapaEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type chapaInitializeData struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
}

type chapaVerifyData struct {
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (g *GatewayClient) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeSession, error) {
	payload := chapaInitializePayload{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.CustomerEmail,
		FirstName:   req.CustomerFirstName,
		LastName:    req.CustomerLastName,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		Customization: chapaCustomization{
			Title:       "Travel Booking Payment",
			Description: req.Description,
		},
	}

	var data chapaInitializeData
	if err := g.post(ctx, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}

	if data.CheckoutURL == "" || data.TxRef == "" {
		return nil, &GatewayError{Op: "initialize", Message: "unexpected response shape"}
	}
	return &ChargeSession{TransactionID: data.TxRef, CheckoutURL: data.CheckoutURL}, nil
}

func (g *GatewayClient) VerifyCharge(ctx context.Context, txRef string) (*ChargeStatus, error) {
	var data chapaVerifyData
	if err := g.get(ctx, "/transaction/verify/"+txRef, &data); err != nil {
		return nil, err
	}
	return &ChargeStatus{Status: data.Status, Amount: data.Amount, Currency: data.Currency}, nil
}

func (g *GatewayClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &GatewayError{Op: "initialize", Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &GatewayError{Op: "initialize", Message: "build request", Err: err}
	}
	return g.do(req, "initialize", out)
}

func (g *GatewayClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return &GatewayError{Op: "verify", Message: "build request", Err: err}
	}
	return g.do(req, "verify", out)
}

func (g *GatewayClient) do(req *http.Request, op string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, Message: "read response", Err: err}
	}

	var envelope chapaEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &GatewayError{Op: op, Message: "malformed response", Err: err}
	}

	if resp.StatusCode >= 400 || envelope.Status != "success" {
		message := envelope.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return &GatewayError{Op: op, Message: message}
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &GatewayError{Op: op, Message: "malformed response data", Err: err}
	}
	return nil
}
