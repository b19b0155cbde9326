package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки без внешнего шлюза. Подписи считаются настоящим
// HMAC на заданном секрете, так что путь верификации не отличается от
// боевого.
type MockGateway struct {
	Secret string

	IntentErr  error
	ConfirmErr error
	// Captured задаёт ответ ConfirmCapture; при нулевом значении
	// возвращается captured-платёж на сумму последнего intent.
	Captured *domain.CapturedPayment

	IntentCalls  int
	ConfirmCalls int

	lastAmount   int64
	lastCurrency string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{Secret: secret}
}

// CreateIntent возвращает intent с новым идентификатором и считает вызовы.
func (m *MockGateway) CreateIntent(_ context.Context, amountMinor int64, currency, _, _ string) (domain.PaymentIntent, error) {
	m.IntentCalls++
	if m.IntentErr != nil {
		return domain.PaymentIntent{}, m.IntentErr
	}
	m.lastAmount = amountMinor
	m.lastCurrency = currency
	return domain.PaymentIntent{
		GatewayOrderID: "mock_order_" + uuid.NewString(),
		AmountMinor:    amountMinor,
		Currency:       currency,
	}, nil
}

// VerifySignature проверяет подпись на секрете mock-шлюза.
func (m *MockGateway) VerifySignature(proof domain.PaymentProof) bool {
	return VerifySignature(m.Secret, proof)
}

// ConfirmCapture возвращает настроенный результат и считает вызовы.
func (m *MockGateway) ConfirmCapture(_ context.Context, gatewayPaymentID string) (domain.CapturedPayment, error) {
	m.ConfirmCalls++
	if m.ConfirmErr != nil {
		return domain.CapturedPayment{}, m.ConfirmErr
	}
	if m.Captured != nil {
		return *m.Captured, nil
	}
	return domain.CapturedPayment{
		GatewayPaymentID: gatewayPaymentID,
		AmountMinor:      m.lastAmount,
		Currency:         m.lastCurrency,
		Captured:         true,
	}, nil
}

// Sign выдаёт валидную подпись для пары идентификаторов (для тестов).
func (m *MockGateway) Sign(gatewayOrderID, gatewayPaymentID string) string {
	return SignProof(m.Secret, gatewayOrderID, gatewayPaymentID)
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
