package domain

import "time"

// PaymentState описывает состояние оплаты заказа.
type PaymentState string

const (
	// PaymentStatePending — оплата ещё не подтверждена.
	PaymentStatePending PaymentState = "pending"
	// PaymentStateCompleted — платёж проверен и принят.
	PaymentStateCompleted PaymentState = "completed"
	// PaymentStateFailed — платёж отклонён или не прошёл проверку.
	PaymentStateFailed PaymentState = "failed"
)

// DeliveryState описывает стадию доставки; единственное изменяемое поле
// заказа после создания. Обновляется внешним fulfillment-сервисом.
type DeliveryState string

const (
	DeliveryStateProcessing DeliveryState = "processing"
	DeliveryStateShipped    DeliveryState = "shipped"
	DeliveryStateDelivered  DeliveryState = "delivered"
	DeliveryStateCancelled  DeliveryState = "cancelled"
)

// Valid проверяет, что стадия доставки относится к поддерживаемым значениям.
func (s DeliveryState) Valid() bool {
	switch s {
	case DeliveryStateProcessing, DeliveryStateShipped, DeliveryStateDelivered, DeliveryStateCancelled:
		return true
	default:
		return false
	}
}

// DeliveryAddress — адрес доставки, указанный при оформлении.
type DeliveryAddress struct {
	AddressLine1 string
	AddressLine2 string
	Landmark     string
	Street       string
	City         string
	State        string
	Zip          string
	Country      string
}

// OrderLine — неизменяемый снапшот позиции на момент создания заказа.
type OrderLine struct {
	ID            string
	ProductID     string
	Qty           int32
	PriceMinor    int64
	SubtotalMinor int64
	CreatedAt     time.Time
}

// Order — неизменяемая запись завершённой покупки. Создаётся ровно один раз
// движком checkout после проверки платежа; дальше мутирует только
// DeliveryState.
type Order struct {
	ID     string
	UserID string
	Lines  []OrderLine
	// Address — адрес доставки, переданный в callback оплаты.
	Address DeliveryAddress
	// DeliveryFeeMinor и SurchargeMinor входят в TotalMinor.
	DeliveryFeeMinor int64
	SurchargeMinor   int64
	TotalMinor       int64
	Currency         string
	// GatewayOrderID и GatewayPaymentID связывают заказ с платёжным шлюзом.
	GatewayOrderID   string
	GatewayPaymentID string
	PaymentState     PaymentState
	DeliveryState    DeliveryState
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate проверяет инварианты заказа: сумма заказа должна сходиться с
// позициями, доставкой и комиссией, заказ не может быть пустым.
func (o *Order) Validate() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrOrderLinesRequired)
	}
	if o.DeliveryFeeMinor < 0 || o.SurchargeMinor < 0 {
		errs = append(errs, ErrOrderFeeNegative)
	}

	var items int64
	for _, line := range o.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.PriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		items += line.SubtotalMinor
	}
	if items+o.DeliveryFeeMinor+o.SurchargeMinor != o.TotalMinor {
		errs = append(errs, ErrOrderTotalMismatch)
	}

	return errs
}
