package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceInvalid = errors.New("product price must be non-negative")
	// Ошибка цены продажи выше базовой.
	ErrSellingPriceAboveBase = errors.New("selling price must not exceed base price")
	// Ошибка отрицательного остатка.
	ErrProductQtyNegative = errors.New("available qty must be non-negative")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка некорректного количества в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка отрицательной цены позиции.
	ErrLinePriceInvalid = errors.New("line price must be non-negative")
	// Ошибка дублирования товара в корзине.
	ErrCartLineDuplicate = errors.New("cart already contains this product")
	// Ошибка расхождения суммы корзины с суммой позиций.
	ErrCartTotalMismatch = errors.New("cart total does not match line subtotals")
	// Ошибка пустого заказа.
	ErrOrderLinesRequired = errors.New("order must contain at least one line")
	// Ошибка отрицательной доставки или комиссии.
	ErrOrderFeeNegative = errors.New("delivery fee and surcharge must be non-negative")
	// Ошибка расхождения суммы заказа с позициями, доставкой и комиссией.
	ErrOrderTotalMismatch = errors.New("order total does not match lines, fee and surcharge")

	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductExists — товар с таким идентификатором уже есть.
	ErrProductExists = errors.New("product already exists")
	// ErrCartNotFound возвращается, если у пользователя нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartEmpty — корзина пуста и непригодна для checkout.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrLineNotFound — товара нет в корзине.
	ErrLineNotFound = errors.New("product not in cart")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists — заказ с таким идентификатором уже создан.
	ErrOrderExists = errors.New("order already exists")

	// ErrInsufficientStock — мягкая проверка остатка при мутации корзины:
	// пользователь может уменьшить количество и повторить.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict — жёсткий конфликт остатка при finalize, когда
	// платёж уже списан. Требует внешнего refund/reconciliation workflow.
	ErrStockConflict = errors.New("stock conflict after payment capture")
	// ErrVerificationFailed — подпись платёжного подтверждения не сошлась.
	// Заказ не создаётся, состояние не меняется.
	ErrVerificationFailed = errors.New("payment verification failed")
	// ErrGatewayUnavailable — шлюз недоступен или превышен таймаут.
	// Отличается от ErrVerificationFailed: повтор finalize безопасен.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrAmountMismatch — списанная шлюзом сумма разошлась с пересчитанным
	// расчётом. Сверяется вручную, как и stock conflict.
	ErrAmountMismatch = errors.New("captured amount does not match quote")
	// ErrFinalizeInProgress — finalize с этим платежом уже выполняется.
	ErrFinalizeInProgress = errors.New("finalize already in progress for this payment")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyExists — запись по ключу уже создана; вызывающий
	// решает по её статусу, вернуть сохранённый ответ или отказать.
	ErrIdempotencyExists = errors.New("idempotency record already exists")
	// ErrIdempotencyConflict — ключ уже занят запросом с другим содержимым.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different request")
	// ErrIdempotencyNotFound — записи по ключу нет.
	ErrIdempotencyNotFound = errors.New("idempotency record not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsReconciliationCase сообщает, требует ли ошибка ручной сверки: деньги
// списаны, а заказ создать нельзя.
func IsReconciliationCase(err error) bool {
	return errors.Is(err, ErrStockConflict) || errors.Is(err, ErrAmountMismatch)
}

// IsRetryable сообщает, безопасно ли повторить finalize с теми же
// идентификаторами шлюза.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
