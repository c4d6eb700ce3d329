package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/learnonline/commerce/internal/domain"
)

const defaultRequestTimeout = 15 * time.Second

// HTTPClient — клиент платёжного процессора поверх его REST API.
// Ошибки 4xx считаются постоянными (неверные параметры или ключ),
// сетевые сбои и 5xx — транзиентными.
type HTTPClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewHTTPClient создаёт клиент процессора с заданным ключом.
func NewHTTPClient(baseURL, secretKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: defaultRequestTimeout},
	}
}

type intentPayload struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type refundPayload struct {
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent создаёт charge intent на сумму заказа.
func (c *HTTPClient) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	payload := intentPayload{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Metadata: map[string]string{"order_id": req.OrderID},
	}

	var resp intentResponse
	if err := c.post(ctx, "/v1/payment_intents", payload, &resp); err != nil {
		return domain.Intent{}, err
	}
	return domain.Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

// CreateRefund инициирует возврат по ранее оплаченному intent.
func (c *HTTPClient) CreateRefund(ctx context.Context, req domain.ProcessorRefundRequest) (string, error) {
	payload := refundPayload{
		PaymentIntent: req.IntentID,
		Amount:        req.AmountMinor,
		Currency:      req.Currency,
		Reason:        req.Reason,
	}

	var resp refundResponse
	if err := c.post(ctx, "/v1/refunds", payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CancelIntent аннулирует неоплаченный intent.
func (c *HTTPClient) CancelIntent(ctx context.Context, intentID string) error {
	var resp intentResponse
	return c.post(ctx, "/v1/payment_intents/"+intentID+"/cancel", struct{}{}, &resp)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal processor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ProcessorError{Message: err.Error(), Temporary: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		msg := resp.Status
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &domain.ProcessorError{Message: msg, Temporary: resp.StatusCode >= 500}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode processor response: %w", err)
	}
	return nil
}

var _ domain.ChargeProcessor = (*HTTPClient)(nil)
