package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

const (
	defaultRequestTimeout = 10 * time.Second

	headerIdempotencyKey = "X-Idempotency-Key"
)

// Config задаёт параметры подключения к платёжному шлюзу.
type Config struct {
	BaseURL string
	KeyID   string
	// KeySecret подписывает подтверждения оплаты; общий секрет со шлюзом.
	KeySecret string
	Timeout   time.Duration
}

// Client — HTTP-адаптер платёжного шлюза (Razorpay-совместимый API).
// Удалённые вызовы идут через circuit breaker; таймауты и 5xx
// транслируются в ErrGatewayUnavailable, чтобы вызывающий мог безопасно
// повторить запрос.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *CircuitBreaker
	logger     *log.Entry
}

// NewClient создаёт клиент шлюза.
func NewClient(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "gateway")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    NewCircuitBreaker(5, 30*time.Second, logger),
		logger:     logger,
	}
}

// intentRequest/intentResponse — формат создания intent у шлюза.
type intentRequest struct {
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

type intentResponse struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type paymentResponse struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// CreateIntent регистрирует намерение оплаты на точную сумму в минимальных
// единицах. Idempotency key передаётся шлюзу, чтобы клиентские ретраи не
// плодили дублирующие intent.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt, idempotencyKey string) (domain.PaymentIntent, error) {
	if amountMinor <= 0 {
		return domain.PaymentIntent{}, domain.ErrOrderTotalMismatch
	}

	body, err := json.Marshal(intentRequest{
		AmountMinor: amountMinor,
		Currency:    currency,
		Receipt:     receipt,
	})
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("marshal intent request: %w", err)
	}

	var resp intentResponse
	err = c.breaker.Execute("create_intent", func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
		if reqErr != nil {
			return fmt.Errorf("build intent request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
		req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

		return c.do(req, &resp)
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	c.logger.WithFields(log.Fields{
		"gateway_order_id": resp.ID,
		"amount_minor":     resp.AmountMinor,
		"currency":         resp.Currency,
	}).Info("payment intent created")

	return domain.PaymentIntent{
		GatewayOrderID: resp.ID,
		AmountMinor:    resp.AmountMinor,
		Currency:       resp.Currency,
	}, nil
}

// VerifySignature — чистая проверка подписи подтверждения оплаты:
// HMAC-SHA256 от "orderID|paymentID" на общем секрете, сравнение за
// константное время. Единственный барьер между callback злоумышленника и
// фиктивным оплаченным заказом.
func (c *Client) VerifySignature(proof domain.PaymentProof) bool {
	return VerifySignature(c.cfg.KeySecret, proof)
}

// VerifySignature проверяет подпись подтверждения без экземпляра клиента.
func VerifySignature(secret string, proof domain.PaymentProof) bool {
	if proof.GatewayOrderID == "" || proof.GatewayPaymentID == "" || proof.Signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(proof.GatewayOrderID + "|" + proof.GatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(proof.Signature))
}

// SignProof считает подпись так же, как её считает шлюз. Используется
// mock-шлюзом и тестами.
func SignProof(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ConfirmCapture запрашивает у шлюза фактическое состояние платежа.
// Недоступность шлюза здесь — НЕ ошибка верификации: легитимно оплаченный
// заказ нельзя отбрасывать из-за таймаута.
func (c *Client) ConfirmCapture(ctx context.Context, gatewayPaymentID string) (domain.CapturedPayment, error) {
	var resp paymentResponse
	err := c.breaker.Execute("confirm_capture", func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/payments/"+gatewayPaymentID, nil)
		if reqErr != nil {
			return fmt.Errorf("build payment request: %w", reqErr)
		}
		req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

		return c.do(req, &resp)
	})
	if err != nil {
		return domain.CapturedPayment{}, err
	}

	return domain.CapturedPayment{
		GatewayPaymentID: resp.ID,
		GatewayOrderID:   resp.OrderID,
		AmountMinor:      resp.AmountMinor,
		Currency:         resp.Currency,
		Captured:         resp.Status == "captured",
	}, nil
}

// do выполняет запрос и декодирует ответ, приводя сетевые сбои к
// ErrGatewayUnavailable.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Таймауты и сетевые сбои — это недоступность шлюза, не отказ.
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway rejected request with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

var _ domain.PaymentGateway = (*Client)(nil)
