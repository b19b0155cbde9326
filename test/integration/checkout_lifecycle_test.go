package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/piecom/internal/api"
	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/piecom/internal/service/cart"
	"github.com/vladislavdragonenkov/piecom/internal/service/checkout"
	"github.com/vladislavdragonenkov/piecom/internal/service/gateway"
	"github.com/vladislavdragonenkov/piecom/internal/storage/memory"
)

const (
	integrationJWTSecret     = "integration-jwt-secret"
	integrationGatewaySecret = "integration-gateway-secret"
)

// outboxInspector расширяет репозиторий возможностью заглянуть в
// очередь pending-сообщений.
type outboxInspector interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

// CheckoutLifecycleTestSuite тестирует полный путь покупателя: каталог,
// корзина, платёжное намерение и финализация заказа через callback шлюза.
type CheckoutLifecycleTestSuite struct {
	suite.Suite
	router      http.Handler
	products    domain.ProductRepository
	orders      domain.OrderRepository
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository
	outbox      outboxInspector
	gw          *gateway.MockGateway
}

func (suite *CheckoutLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.products = memory.NewProductRepository()
	carts := memory.NewCartRepository()
	suite.orders = memory.NewOrderRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.idempotency = memory.NewIdempotencyRepository()
	suite.outbox = memory.NewOutboxRepository()
	suite.gw = gateway.NewMockGateway(integrationGatewaySecret)

	cartSvc := cart.NewService(suite.products, carts, nil, logger)
	engine := checkout.NewEngine(
		checkout.Config{
			DeliveryFeeMinor: 60,
			SurchargeBP:      200,
			Currency:         "INR",
		},
		suite.products, carts, suite.orders, suite.gw,
		suite.idempotency, suite.outbox, suite.timeline, nil, logger,
	)

	server := api.NewServer(suite.products, suite.orders, suite.timeline, cartSvc, engine, []byte(integrationJWTSecret), logger)
	suite.router = server.Router()
}

func (suite *CheckoutLifecycleTestSuite) TestSuccessfulCheckoutLifecycle() {
	t := suite.T()

	productID := suite.createProduct(600, 500, 5)
	userToken := suite.token("customer-1")

	// Корзина: две штуки по актуальной цене 500.
	rec := suite.do(http.MethodPost, "/api/cart/lines", userToken, map[string]any{
		"product_id": productID,
		"qty":        2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Quote: 1000 товары + 60 доставка + 21 комиссия (2% от 1060).
	var quote struct {
		ItemsMinor       int64  `json:"items_minor"`
		DeliveryFeeMinor int64  `json:"delivery_fee_minor"`
		SurchargeMinor   int64  `json:"surcharge_minor"`
		TotalMinor       int64  `json:"total_minor"`
		Currency         string `json:"currency"`
	}
	rec = suite.do(http.MethodGet, "/api/checkout/quote", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suite.decode(rec, &quote)
	require.Equal(t, int64(1000), quote.ItemsMinor)
	require.Equal(t, int64(60), quote.DeliveryFeeMinor)
	require.Equal(t, int64(21), quote.SurchargeMinor)
	require.Equal(t, int64(1081), quote.TotalMinor)
	require.Equal(t, "INR", quote.Currency)

	intent := suite.openIntent(userToken)
	require.Equal(t, int64(1081), intent.AmountMinor)

	orderID := suite.finalize(userToken, intent.GatewayOrderID, "pay-lifecycle-1")

	// Заказ доступен владельцу и находится в начальном состоянии доставки.
	var order struct {
		ID            string `json:"id"`
		TotalMinor    int64  `json:"total_minor"`
		PaymentState  string `json:"payment_state"`
		DeliveryState string `json:"delivery_state"`
	}
	rec = suite.do(http.MethodGet, "/api/orders/"+orderID, userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suite.decode(rec, &order)
	require.Equal(t, int64(1081), order.TotalMinor)
	require.Equal(t, string(domain.PaymentStateCompleted), order.PaymentState)
	require.Equal(t, string(domain.DeliveryStateProcessing), order.DeliveryState)

	// Остаток списан ровно один раз.
	product, err := suite.products.Get(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, int32(3), product.AvailableQty)

	// Корзина вычищена.
	var emptyCart struct {
		Lines []any `json:"lines"`
	}
	rec = suite.do(http.MethodGet, "/api/cart", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suite.decode(rec, &emptyCart)
	require.Empty(t, emptyCart.Lines)

	// Timeline и outbox зафиксировали создание заказа.
	var timeline struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	rec = suite.do(http.MethodGet, "/api/orders/"+orderID+"/timeline", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suite.decode(rec, &timeline)
	require.True(t, hasEventType(timelineTypes(timeline.Events), checkout.EventOrderCreated))

	pending := suite.outbox.AllPending()
	require.True(t, hasOutboxEvent(pending, checkout.EventOrderCreated, orderID))

	// Ключ идемпотентности закрыт успешным ответом.
	record, err := suite.idempotency.Get("finalize:pay-lifecycle-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
	require.Equal(t, 201, record.HTTPStatus)
}

func (suite *CheckoutLifecycleTestSuite) TestCallbackReplayReturnsSameOrder() {
	t := suite.T()

	productID := suite.createProduct(600, 500, 5)
	userToken := suite.token("customer-replay")

	rec := suite.do(http.MethodPost, "/api/cart/lines", userToken, map[string]any{
		"product_id": productID,
		"qty":        2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	intent := suite.openIntent(userToken)
	orderID := suite.finalize(userToken, intent.GatewayOrderID, "pay-replay-1")

	// Шлюз доставил callback повторно: тот же заказ, без второго списания.
	replayID := suite.finalize(userToken, intent.GatewayOrderID, "pay-replay-1")
	require.Equal(t, orderID, replayID)

	product, err := suite.products.Get(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, int32(3), product.AvailableQty)

	orders, err := suite.orders.ListByUser(context.Background(), "customer-replay", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func (suite *CheckoutLifecycleTestSuite) TestStockConflictReconciliation() {
	t := suite.T()

	productID := suite.createProduct(600, 500, 1)
	first := suite.token("customer-fast")
	second := suite.token("customer-slow")

	for _, token := range []string{first, second} {
		rec := suite.do(http.MethodPost, "/api/cart/lines", token, map[string]any{
			"product_id": productID,
			"qty":        1,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	firstIntent := suite.openIntent(first)
	secondIntent := suite.openIntent(second)

	suite.finalize(first, firstIntent.GatewayOrderID, "pay-fast-1")

	// Второй покупатель уже оплатил, но остатка нет: терминальный отказ.
	rec := suite.do(http.MethodPost, "/api/checkout/callback", second, suite.callbackBody(secondIntent.GatewayOrderID, "pay-slow-1"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "stock_conflict", suite.errorKind(rec))

	product, err := suite.products.Get(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, int32(0), product.AvailableQty)

	// Отказ зафиксирован для ручной сверки: idempotency failed,
	// reconciliation-событие в timeline и в outbox.
	record, err := suite.idempotency.Get("finalize:pay-slow-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	require.Equal(t, 409, record.HTTPStatus)

	events, err := suite.timeline.List("finalize:pay-slow-1")
	require.NoError(t, err)
	require.True(t, hasEventType(timelineEventTypes(events), checkout.EventStockConflict))

	pending := suite.outbox.AllPending()
	require.True(t, hasOutboxEvent(pending, checkout.EventStockConflict, "finalize:pay-slow-1"))

	// Повтор того же callback отдаёт сохранённый отказ, не пытаясь
	// финализировать заново.
	rec = suite.do(http.MethodPost, "/api/checkout/callback", second, suite.callbackBody(secondIntent.GatewayOrderID, "pay-slow-1"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "stock_conflict", suite.errorKind(rec))
}

func (suite *CheckoutLifecycleTestSuite) TestTamperedCallbackLeavesNoTrace() {
	t := suite.T()

	productID := suite.createProduct(600, 500, 5)
	userToken := suite.token("customer-tamper")

	rec := suite.do(http.MethodPost, "/api/cart/lines", userToken, map[string]any{
		"product_id": productID,
		"qty":        1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	intent := suite.openIntent(userToken)

	body := suite.callbackBody(intent.GatewayOrderID, "pay-tamper-1")
	body["signature"] = "forged"
	rec = suite.do(http.MethodPost, "/api/checkout/callback", userToken, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "verification_failed", suite.errorKind(rec))

	// Отказ подписи не оставляет следов: корзина цела, остаток не тронут,
	// ключ идемпотентности не занят.
	var cartBody struct {
		Lines []any `json:"lines"`
	}
	rec = suite.do(http.MethodGet, "/api/cart", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suite.decode(rec, &cartBody)
	require.Len(t, cartBody.Lines, 1)

	product, err := suite.products.Get(context.Background(), productID)
	require.NoError(t, err)
	require.Equal(t, int32(5), product.AvailableQty)

	_, err = suite.idempotency.Get("finalize:pay-tamper-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyNotFound)
}

func (suite *CheckoutLifecycleTestSuite) TestFulfillmentEventAdvancesDelivery() {
	t := suite.T()

	productID := suite.createProduct(600, 500, 5)
	userToken := suite.token("customer-delivery")

	rec := suite.do(http.MethodPost, "/api/cart/lines", userToken, map[string]any{
		"product_id": productID,
		"qty":        1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	intent := suite.openIntent(userToken)
	orderID := suite.finalize(userToken, intent.GatewayOrderID, "pay-delivery-1")

	// Fulfillment-сервис сообщает об отгрузке через Kafka.
	event := kafka.NewFulfillmentEvent(orderID, string(domain.DeliveryStateShipped), nil)
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	handler := kafka.NewFulfillmentHandler(suite.orders, nil)
	err = handler(context.Background(), &sarama.ConsumerMessage{
		Topic: kafka.TopicFulfillmentEvents,
		Value: raw,
	})
	require.NoError(t, err)

	var order struct {
		DeliveryState string `json:"delivery_state"`
	}
	rec = suite.do(http.MethodGet, "/api/orders/"+orderID, userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suite.decode(rec, &order)
	require.Equal(t, string(domain.DeliveryStateShipped), order.DeliveryState)
}

// Вспомогательные методы

func (suite *CheckoutLifecycleTestSuite) createProduct(priceMinor, sellingMinor int64, qty int32) string {
	adminToken := suite.token("admin-1", "admin")

	rec := suite.do(http.MethodPost, "/api/products", adminToken, map[string]any{
		"name":                "integration product",
		"category":            "pantry",
		"price_minor":         priceMinor,
		"selling_price_minor": sellingMinor,
		"available_qty":       qty,
	})
	require.Equal(suite.T(), http.StatusCreated, rec.Code)

	var created struct {
		ID string `json:"id"`
	}
	suite.decode(rec, &created)
	require.NotEmpty(suite.T(), created.ID)
	return created.ID
}

type intentView struct {
	GatewayOrderID string `json:"gateway_order_id"`
	AmountMinor    int64  `json:"amount_minor"`
}

func (suite *CheckoutLifecycleTestSuite) openIntent(token string) intentView {
	rec := suite.do(http.MethodPost, "/api/checkout/intent", token, nil)
	require.Equal(suite.T(), http.StatusCreated, rec.Code)

	var intent intentView
	suite.decode(rec, &intent)
	require.NotEmpty(suite.T(), intent.GatewayOrderID)
	return intent
}

func (suite *CheckoutLifecycleTestSuite) callbackBody(gatewayOrderID, paymentID string) map[string]any {
	return map[string]any{
		"gateway_order_id":   gatewayOrderID,
		"gateway_payment_id": paymentID,
		"signature":          suite.gw.Sign(gatewayOrderID, paymentID),
		"address": map[string]string{
			"address_line1": "7 Harbour View",
			"street":        "Marine Drive",
			"city":          "Mumbai",
			"state":         "MH",
			"zip":           "400001",
			"country":       "IN",
		},
	}
}

func (suite *CheckoutLifecycleTestSuite) finalize(token, gatewayOrderID, paymentID string) string {
	rec := suite.do(http.MethodPost, "/api/checkout/callback", token, suite.callbackBody(gatewayOrderID, paymentID))
	require.Equal(suite.T(), http.StatusCreated, rec.Code)

	var result struct {
		OrderID string `json:"order_id"`
	}
	suite.decode(rec, &result)
	require.NotEmpty(suite.T(), result.OrderID)
	return result.OrderID
}

func (suite *CheckoutLifecycleTestSuite) token(userID string, roles ...string) string {
	claims := api.Claims{
		UserID: userID,
		Role:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(integrationJWTSecret))
	require.NoError(suite.T(), err)
	return "Bearer " + signed
}

func (suite *CheckoutLifecycleTestSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	rec := httptest.NewRecorder()
	suite.router.ServeHTTP(rec, req)
	return rec
}

func (suite *CheckoutLifecycleTestSuite) decode(rec *httptest.ResponseRecorder, dst any) {
	require.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(dst))
}

func (suite *CheckoutLifecycleTestSuite) errorKind(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	suite.decode(rec, &body)
	return body.Error.Kind
}

func timelineTypes(events []struct {
	Type string `json:"type"`
}) []string {
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func timelineEventTypes(events []domain.TimelineEvent) []string {
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func hasEventType(types []string, want string) bool {
	for _, eventType := range types {
		if eventType == want {
			return true
		}
	}
	return false
}

func hasOutboxEvent(messages []domain.OutboxMessage, eventType, aggregateID string) bool {
	for _, msg := range messages {
		if msg.EventType == eventType && msg.AggregateID == aggregateID {
			return true
		}
	}
	return false
}

func TestCheckoutLifecycle(t *testing.T) {
	suite.Run(t, new(CheckoutLifecycleTestSuite))
}
