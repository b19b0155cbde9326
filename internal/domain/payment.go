package domain

// PaymentIntent — value object, возвращаемый платёжным шлюзом при создании
// намерения оплаты. Движок не персистит его: идентификатор шлюза попадает
// только в итоговый заказ.
type PaymentIntent struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
}

// CapturedPayment описывает фактически списанный платёж по данным шлюза.
// Используется для сверки суммы перед созданием заказа.
type CapturedPayment struct {
	GatewayPaymentID string
	GatewayOrderID   string
	AmountMinor      int64
	Currency         string
	Captured         bool
}

// PaymentProof — подписанное подтверждение оплаты из callback/webhook шлюза.
type PaymentProof struct {
	GatewayOrderID   string
	GatewayPaymentID string
	// Signature — HMAC-SHA256 от пары идентификаторов, hex-кодированная.
	Signature string
}
