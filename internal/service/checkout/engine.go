package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/metrics"
)

// Типы событий, публикуемых движком через outbox.
const (
	EventOrderCreated   = "order.created"
	EventStockConflict  = "checkout.stock_conflict"
	EventAmountMismatch = "checkout.amount_mismatch"
)

// Терминальные причины отказа, сохраняемые в idempotency-записи.
const (
	failureKindStockConflict  = "stock_conflict"
	failureKindAmountMismatch = "amount_mismatch"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Config задаёт параметры ценообразования и поведение finalize.
type Config struct {
	// DeliveryFeeMinor — плоская стоимость доставки в минорных единицах.
	DeliveryFeeMinor int64
	// SurchargeBP — комиссия шлюза в базисных пунктах от базы
	// "товары + доставка".
	SurchargeBP int64
	Currency    string
	// ConfirmCapture включает сверку фактического платежа со шлюзом
	// перед созданием заказа. Локальная проверка подписи выполняется
	// всегда, независимо от этого флага.
	ConfirmCapture bool
	// IdempotencyTTL — время жизни записи идемпотентности finalize.
	IdempotencyTTL time.Duration
}

// Engine — движок checkout: авторитетный пересчёт сумм, создание
// платёжного намерения и финализация заказа. Единственное место в
// системе, которому разрешено списывать складской остаток и создавать
// заказы.
type Engine struct {
	cfg         Config
	products    domain.ProductRepository
	carts       domain.CartRepository
	orders      domain.OrderRepository
	gateway     domain.PaymentGateway
	idempotency domain.IdempotencyRepository
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	metrics     *metrics.CheckoutMetrics
	logger      *log.Entry
}

// FinalizeRequest — данные callback об оплате от шлюза.
type FinalizeRequest struct {
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Address          domain.DeliveryAddress
}

// finalizeResult сохраняется в idempotency-записи успешного finalize.
type finalizeResult struct {
	OrderID string `json:"order_id"`
}

// finalizeFailure сохраняется в idempotency-записи терминального отказа.
type finalizeFailure struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// NewEngine создаёт движок checkout.
func NewEngine(
	cfg Config,
	products domain.ProductRepository,
	carts domain.CartRepository,
	orders domain.OrderRepository,
	gateway domain.PaymentGateway,
	idempotency domain.IdempotencyRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	checkoutMetrics *metrics.CheckoutMetrics,
	logger *log.Entry,
) *Engine {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Engine{
		cfg:         cfg,
		products:    products,
		carts:       carts,
		orders:      orders,
		gateway:     gateway,
		idempotency: idempotency,
		outbox:      outbox,
		timeline:    timeline,
		metrics:     checkoutMetrics,
		logger:      logger,
	}
}

// Quote пересчитывает сумму к оплате по актуальным ценам товаров.
// Снапшоты цен в корзине не используются: между добавлением в корзину
// и checkout цена могла измениться.
func (e *Engine) Quote(ctx context.Context, userID string) (domain.Quote, error) {
	cart, err := e.carts.Get(ctx, userID)
	if err != nil {
		return domain.Quote{}, err
	}
	return e.quoteCart(ctx, cart)
}

func (e *Engine) quoteCart(ctx context.Context, cart domain.Cart) (domain.Quote, error) {
	if cart.IsEmpty() {
		return domain.Quote{}, domain.ErrCartEmpty
	}

	lines := make([]domain.QuoteLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		product, err := e.products.Get(ctx, line.ProductID)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("quote product %s: %w", line.ProductID, err)
		}
		lines = append(lines, domain.QuoteLine{
			ProductID:  product.ID,
			Qty:        line.Qty,
			PriceMinor: product.SellingPriceMinor,
		})
	}

	return domain.BuildQuote(lines, e.cfg.DeliveryFeeMinor, e.cfg.SurchargeBP, e.cfg.Currency), nil
}

// OpenIntent регистрирует намерение оплаты на шлюзе на пересчитанную
// сумму. Сумма клиента не принимается ни в каком виде.
func (e *Engine) OpenIntent(ctx context.Context, userID string) (domain.PaymentIntent, domain.Quote, error) {
	quote, err := e.Quote(ctx, userID)
	if err != nil {
		return domain.PaymentIntent{}, domain.Quote{}, err
	}

	intent, err := e.gateway.CreateIntent(ctx, quote.TotalMinor, quote.Currency, userID, uuid.NewString())
	if err != nil {
		return domain.PaymentIntent{}, domain.Quote{}, fmt.Errorf("create payment intent: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordIntentOpened()
	}
	e.logger.WithFields(log.Fields{
		"user_id":          userID,
		"gateway_order_id": intent.GatewayOrderID,
		"amount_minor":     intent.AmountMinor,
	}).Info("payment intent opened")

	return intent, quote, nil
}

// Finalize превращает проверенный платёж в заказ. Порядок фиксирован:
// проверка подписи, захват ключа идемпотентности, сверка со шлюзом,
// пересчёт суммы, условное списание остатка, вставка заказа. Повтор с
// тем же идентификатором платежа возвращает уже созданный заказ и не
// списывает остаток второй раз.
func (e *Engine) Finalize(ctx context.Context, req FinalizeRequest) (domain.Order, error) {
	started := time.Now()
	if e.metrics != nil {
		e.metrics.RecordFinalizeStarted()
		defer func() {
			e.metrics.RecordFinalizeFinished()
			e.metrics.RecordFinalizeDuration(time.Since(started))
		}()
	}

	logger := e.logger.WithFields(log.Fields{
		"user_id":            req.UserID,
		"gateway_order_id":   req.GatewayOrderID,
		"gateway_payment_id": req.GatewayPaymentID,
	})

	// Шаг 1: подпись. Отказ здесь не оставляет никаких следов в
	// состоянии, кроме лога и метрики.
	proof := domain.PaymentProof{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	}
	if !e.gateway.VerifySignature(proof) {
		if e.metrics != nil {
			e.metrics.RecordVerificationFailed()
		}
		logger.Warn("payment proof rejected: signature mismatch")
		return domain.Order{}, domain.ErrVerificationFailed
	}

	// Шаг 2: захват ключа идемпотентности. Ключ — идентификатор платежа:
	// один платёж не может породить два заказа.
	key := finalizeKey(req.GatewayPaymentID)
	record, err := e.idempotency.CreateProcessing(key, requestHash(req), e.idempotencyTTL())
	switch {
	case errors.Is(err, domain.ErrIdempotencyExists):
		return e.replay(ctx, record, logger)
	case errors.Is(err, domain.ErrIdempotencyConflict):
		logger.Warn("finalize payload differs from the original attempt")
		return domain.Order{}, err
	case err != nil:
		return domain.Order{}, fmt.Errorf("claim finalize key: %w", err)
	}

	order, err := e.finalizeClaimed(ctx, req, logger)
	if err != nil {
		e.settleFailure(key, err, logger)
		return domain.Order{}, err
	}

	body, marshalErr := json.Marshal(finalizeResult{OrderID: order.ID})
	if marshalErr == nil {
		if err := e.idempotency.MarkDone(key, body, 201); err != nil {
			// Заказ уже создан; повтор callback разрешится через
			// поиск по идентификатору платежа.
			logger.WithError(err).Error("mark finalize done failed")
		}
	}

	if e.metrics != nil {
		e.metrics.RecordOrderFinalized()
	}
	logger.WithField("order_id", order.ID).Info("order finalized")
	return order, nil
}

// replay обрабатывает повторный finalize с уже занятым ключом.
func (e *Engine) replay(ctx context.Context, record domain.IdempotencyRecord, logger *log.Entry) (domain.Order, error) {
	switch record.Status {
	case domain.IdempotencyStatusDone:
		var result finalizeResult
		if err := json.Unmarshal(record.ResponseBody, &result); err != nil {
			return domain.Order{}, fmt.Errorf("decode stored finalize result: %w", err)
		}
		order, err := e.orders.Get(ctx, result.OrderID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("load finalized order %s: %w", result.OrderID, err)
		}
		if e.metrics != nil {
			e.metrics.RecordRetryServed()
		}
		logger.WithField("order_id", order.ID).Info("finalize retry served from idempotency record")
		return order, nil

	case domain.IdempotencyStatusFailed:
		var failure finalizeFailure
		if err := json.Unmarshal(record.ResponseBody, &failure); err != nil {
			return domain.Order{}, fmt.Errorf("decode stored finalize failure: %w", err)
		}
		return domain.Order{}, failureError(failure)

	default:
		return domain.Order{}, domain.ErrFinalizeInProgress
	}
}

// finalizeClaimed выполняет шаги finalize после захвата ключа.
func (e *Engine) finalizeClaimed(ctx context.Context, req FinalizeRequest, logger *log.Entry) (domain.Order, error) {
	// Шаг 3: сверка со шлюзом. Таймаут здесь — не отказ верификации:
	// ключ будет освобождён и повтор пройдёт заново.
	var captured domain.CapturedPayment
	if e.cfg.ConfirmCapture {
		var err error
		captured, err = e.confirmCapture(ctx, req)
		if err != nil {
			return domain.Order{}, err
		}
	}

	// Шаг 4: свежая корзина и авторитетный пересчёт.
	cart, err := e.carts.Get(ctx, req.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	quote, err := e.quoteCart(ctx, cart)
	if err != nil {
		return domain.Order{}, err
	}

	if e.cfg.ConfirmCapture && captured.AmountMinor != quote.TotalMinor {
		return domain.Order{}, fmt.Errorf("%w: captured %d, quoted %d",
			domain.ErrAmountMismatch, captured.AmountMinor, quote.TotalMinor)
	}

	// Шаг 5: условное списание остатка с компенсацией при частичном
	// успехе. Сам декремент атомарен по одному товару; атомарность по
	// корзине обеспечивает откат.
	stepStarted := time.Now()
	if err := e.decrementAll(ctx, quote.Lines); err != nil {
		return domain.Order{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordStepDuration("decrement_stock", time.Since(stepStarted))
	}

	// Шаг 6: вставка заказа. Остаток уже списан, поэтому любая ошибка
	// дальше обязана вернуть его обратно.
	order := e.buildOrder(req, quote)
	if err := e.orders.Create(ctx, order); err != nil {
		e.incrementAll(ctx, quote.Lines, logger)

		if errors.Is(err, domain.ErrOrderExists) {
			// Гонка двух finalize с одним платежом: заказ уже есть,
			// возвращаем его.
			if existing, lookupErr := e.orders.GetByGatewayPayment(ctx, req.GatewayPaymentID); lookupErr == nil {
				return existing, nil
			}
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	// Корзина своё отработала. Ошибка удаления не критична: заказ
	// создан, корзину можно вычистить позже.
	if err := e.carts.Delete(ctx, req.UserID); err != nil {
		logger.WithError(err).Warn("clear cart after finalize failed")
	}

	e.publishOrderCreated(order, logger)
	e.appendTimeline(domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     EventOrderCreated,
		Occurred: time.Now().UTC(),
	}, logger)

	return order, nil
}

// confirmCapture запрашивает у шлюза фактическое состояние платежа.
func (e *Engine) confirmCapture(ctx context.Context, req FinalizeRequest) (domain.CapturedPayment, error) {
	captured, err := e.gateway.ConfirmCapture(ctx, req.GatewayPaymentID)
	if err != nil {
		return domain.CapturedPayment{}, fmt.Errorf("confirm capture: %w", err)
	}
	if !captured.Captured {
		return domain.CapturedPayment{}, fmt.Errorf("%w: payment %s is not captured",
			domain.ErrVerificationFailed, req.GatewayPaymentID)
	}
	if captured.GatewayOrderID != "" && captured.GatewayOrderID != req.GatewayOrderID {
		return domain.CapturedPayment{}, fmt.Errorf("%w: payment %s belongs to another gateway order",
			domain.ErrVerificationFailed, req.GatewayPaymentID)
	}
	return captured, nil
}

// decrementAll списывает остаток по каждой позиции; при нехватке
// откатывает уже списанное и возвращает жёсткий конфликт.
func (e *Engine) decrementAll(ctx context.Context, lines []domain.QuoteLine) error {
	for i, line := range lines {
		err := e.products.DecrementStock(ctx, line.ProductID, line.Qty)
		if err == nil {
			continue
		}

		e.incrementAll(ctx, lines[:i], e.logger)

		if errors.Is(err, domain.ErrInsufficientStock) {
			return fmt.Errorf("%w: product %s", domain.ErrStockConflict, line.ProductID)
		}
		return fmt.Errorf("decrement stock for %s: %w", line.ProductID, err)
	}
	return nil
}

// incrementAll возвращает остаток по списанным позициям.
func (e *Engine) incrementAll(ctx context.Context, lines []domain.QuoteLine, logger *log.Entry) {
	for _, line := range lines {
		if err := e.products.IncrementStock(ctx, line.ProductID, line.Qty); err != nil {
			logger.WithError(err).WithField("product_id", line.ProductID).
				Error("stock compensation failed, manual correction required")
		}
	}
}

// settleFailure решает судьбу ключа идемпотентности после ошибки:
// повторяемые ошибки освобождают ключ, терминальные фиксируются как
// failed, reconciliation-случаи дополнительно публикуются.
func (e *Engine) settleFailure(key string, failure error, logger *log.Entry) {
	switch {
	case errors.Is(failure, domain.ErrStockConflict):
		e.recordReconciliation(key, failureKindStockConflict, EventStockConflict, failure, logger)
		if e.metrics != nil {
			e.metrics.RecordStockConflict()
		}

	case errors.Is(failure, domain.ErrAmountMismatch):
		e.recordReconciliation(key, failureKindAmountMismatch, EventAmountMismatch, failure, logger)
		if e.metrics != nil {
			e.metrics.RecordAmountMismatch()
		}

	default:
		// Всё остальное считается повторяемым: ключ освобождается,
		// следующий callback с тем же платежом начнёт заново.
		if err := e.idempotency.Delete(key); err != nil {
			logger.WithError(err).Error("release finalize key failed")
		}
	}
}

// recordReconciliation фиксирует терминальный отказ: деньги списаны, а
// заказ создать нельзя. Дальше случай разбирается вручную по timeline
// и опубликованному событию.
func (e *Engine) recordReconciliation(key, kind, eventType string, failure error, logger *log.Entry) {
	logger.WithError(failure).Error("finalize requires reconciliation")

	body, err := json.Marshal(finalizeFailure{Kind: kind, Reason: failure.Error()})
	if err == nil {
		if markErr := e.idempotency.MarkFailed(key, body, 409); markErr != nil {
			logger.WithError(markErr).Error("mark finalize failed errored")
		}
	}

	payload, err := json.Marshal(map[string]string{"kind": kind, "reason": failure.Error()})
	if err == nil {
		if _, enqErr := e.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "checkout",
			AggregateID:   key,
			EventType:     eventType,
			Payload:       payload,
		}); enqErr != nil {
			logger.WithError(enqErr).Error("enqueue reconciliation event failed")
		} else if e.metrics != nil {
			e.metrics.RecordOutboxEvent()
		}
	}

	e.appendTimeline(domain.TimelineEvent{
		OrderID:  key,
		Type:     eventType,
		Reason:   failure.Error(),
		Occurred: time.Now().UTC(),
	}, logger)
}

func (e *Engine) publishOrderCreated(order domain.Order, logger *log.Entry) {
	payload, err := json.Marshal(map[string]any{
		"order_id":           order.ID,
		"user_id":            order.UserID,
		"total_minor":        order.TotalMinor,
		"currency":           order.Currency,
		"gateway_payment_id": order.GatewayPaymentID,
	})
	if err != nil {
		logger.WithError(err).Error("marshal order created event failed")
		return
	}

	if _, err := e.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     EventOrderCreated,
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).Error("enqueue order created event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

func (e *Engine) appendTimeline(event domain.TimelineEvent, logger *log.Entry) {
	if err := e.timeline.Append(event); err != nil {
		logger.WithError(err).Error("append timeline event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordTimelineEvent()
	}
}

func (e *Engine) buildOrder(req FinalizeRequest, quote domain.Quote) domain.Order {
	now := time.Now().UTC()

	lines := make([]domain.OrderLine, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		lines = append(lines, domain.OrderLine{
			ID:            uuid.NewString(),
			ProductID:     line.ProductID,
			Qty:           line.Qty,
			PriceMinor:    line.PriceMinor,
			SubtotalMinor: line.SubtotalMinor,
			CreatedAt:     now,
		})
	}

	return domain.Order{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		Lines:            lines,
		Address:          req.Address,
		DeliveryFeeMinor: quote.DeliveryFeeMinor,
		SurchargeMinor:   quote.SurchargeMinor,
		TotalMinor:       quote.TotalMinor,
		Currency:         quote.Currency,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		PaymentState:     domain.PaymentStateCompleted,
		DeliveryState:    domain.DeliveryStateProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (e *Engine) idempotencyTTL() time.Time {
	return time.Now().UTC().Add(e.cfg.IdempotencyTTL)
}

func finalizeKey(gatewayPaymentID string) string {
	return "finalize:" + gatewayPaymentID
}

// requestHash связывает ключ идемпотентности с содержимым запроса:
// тот же платёж с другим пользователем или другим intent — конфликт,
// а не повтор.
func requestHash(req FinalizeRequest) string {
	sum := sha256.Sum256([]byte(req.UserID + "|" + req.GatewayOrderID + "|" + req.GatewayPaymentID))
	return hex.EncodeToString(sum[:])
}

// failureError восстанавливает sentinel-ошибку из сохранённого отказа.
func failureError(failure finalizeFailure) error {
	switch failure.Kind {
	case failureKindStockConflict:
		return fmt.Errorf("%w: %s", domain.ErrStockConflict, failure.Reason)
	case failureKindAmountMismatch:
		return fmt.Errorf("%w: %s", domain.ErrAmountMismatch, failure.Reason)
	default:
		return fmt.Errorf("finalize previously failed: %s", failure.Reason)
	}
}
