package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/service/cart"
	"github.com/vladislavdragonenkov/piecom/internal/service/checkout"
	"github.com/vladislavdragonenkov/piecom/internal/service/gateway"
	"github.com/vladislavdragonenkov/piecom/internal/storage/memory"
)

var testJWTSecret = []byte("api-test-secret")

type apiFixture struct {
	server   *Server
	products domain.ProductRepository
	gw       *gateway.MockGateway
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	products := memory.NewProductRepository()
	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	idem := memory.NewIdempotencyRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()

	logger := log.New().WithField("component", "api-test")
	gw := gateway.NewMockGateway("gateway-secret")

	cartSvc := cart.NewService(products, carts, nil, logger)
	engine := checkout.NewEngine(
		checkout.Config{
			DeliveryFeeMinor: 60,
			SurchargeBP:      200,
			Currency:         "INR",
		},
		products, carts, orders, gw, idem, outbox, timeline, nil, logger,
	)

	return &apiFixture{
		server:   NewServer(products, orders, timeline, cartSvc, engine, testJWTSecret, logger),
		products: products,
		gw:       gw,
	}
}

func (f *apiFixture) seedProduct(t *testing.T, id string, sellingMinor int64, qty int32) {
	t.Helper()

	now := time.Now().UTC()
	err := f.products.Create(context.Background(), domain.Product{
		ID:                id,
		Name:              "product " + id,
		PriceMinor:        sellingMinor,
		SellingPriceMinor: sellingMinor,
		AvailableQty:      qty,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err)
}

func tokenFor(t *testing.T, userID string, roles ...string) string {
	t.Helper()

	claims := Claims{
		UserID: userID,
		Role:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decodeInto(t, rec, &body)
	return body.Error.Kind
}

func TestProducts_PublicReadAdminWrite(t *testing.T) {
	f := newAPIFixture(t)
	admin := tokenFor(t, "admin-1", "admin")
	user := tokenFor(t, "user-1")

	payload := productPayload{
		Name:              "Apple Pie",
		Category:          "bakery",
		PriceMinor:        600,
		SellingPriceMinor: 500,
		AvailableQty:      5,
	}

	rec := f.do(t, http.MethodPost, "/api/products", "", payload)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/products", user, payload)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", errorKind(t, rec))

	rec = f.do(t, http.MethodPost, "/api/products", admin, payload)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created productResponse
	decodeInto(t, rec, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, int32(16), created.DiscountPercent)

	rec = f.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Products []productResponse `json:"products"`
	}
	decodeInto(t, rec, &listed)
	require.Len(t, listed.Products, 1)

	rec = f.do(t, http.MethodGet, "/api/products/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/products/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "product_not_found", errorKind(t, rec))
}

func TestProducts_CreateValidation(t *testing.T) {
	f := newAPIFixture(t)
	admin := tokenFor(t, "admin-1", "admin")

	rec := f.do(t, http.MethodPost, "/api/products", admin, productPayload{
		Name:              "Broken",
		PriceMinor:        100,
		SellingPriceMinor: 200,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "selling_price_above_base", errorKind(t, rec))
}

func TestCart_Flow(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 500, 5)
	user := tokenFor(t, "user-1")

	rec := f.do(t, http.MethodGet, "/api/cart", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty cartResponse
	decodeInto(t, rec, &empty)
	require.Empty(t, empty.Lines)

	rec = f.do(t, http.MethodPost, "/api/cart/lines", user, cartLineRequest{ProductID: "p1", Qty: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var withLine cartResponse
	decodeInto(t, rec, &withLine)
	require.Equal(t, int64(1000), withLine.TotalMinor)

	rec = f.do(t, http.MethodPatch, "/api/cart/lines/p1", user, map[string]int32{"qty": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated cartResponse
	decodeInto(t, rec, &updated)
	require.Equal(t, int64(500), updated.TotalMinor)

	rec = f.do(t, http.MethodDelete, "/api/cart/lines/p1", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared cartResponse
	decodeInto(t, rec, &cleared)
	require.Empty(t, cleared.Lines)

	rec = f.do(t, http.MethodPost, "/api/cart/lines", user, cartLineRequest{ProductID: "missing", Qty: 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "product_not_found", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckout_QuoteAndIntent(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 500, 5)
	user := tokenFor(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/cart/lines", user, cartLineRequest{ProductID: "p1", Qty: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/checkout/quote", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote quoteResponse
	decodeInto(t, rec, &quote)
	require.Equal(t, int64(1000), quote.ItemsMinor)
	require.Equal(t, int64(60), quote.DeliveryFeeMinor)
	require.Equal(t, int64(21), quote.SurchargeMinor)
	require.Equal(t, int64(1081), quote.TotalMinor)

	rec = f.do(t, http.MethodPost, "/api/checkout/intent", user, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var intent intentResponse
	decodeInto(t, rec, &intent)
	require.NotEmpty(t, intent.GatewayOrderID)
	require.Equal(t, int64(1081), intent.AmountMinor)

	emptyUser := tokenFor(t, "user-empty")
	rec = f.do(t, http.MethodGet, "/api/checkout/quote", emptyUser, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "cart_empty", errorKind(t, rec))
}

func TestCheckout_CallbackCreatesOrder(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 500, 5)
	user := tokenFor(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/cart/lines", user, cartLineRequest{ProductID: "p1", Qty: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/checkout/intent", user, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var intent intentResponse
	decodeInto(t, rec, &intent)

	callback := callbackRequest{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		Signature:        f.gw.Sign(intent.GatewayOrderID, "pay_1"),
		Address: addressPayload{
			AddressLine1: "12 Baker Street",
			City:         "London",
			Zip:          "NW16XE",
			Country:      "UK",
		},
	}
	rec = f.do(t, http.MethodPost, "/api/checkout/callback", user, callback)
	require.Equal(t, http.StatusCreated, rec.Code)
	var result map[string]string
	decodeInto(t, rec, &result)
	orderID := result["order_id"]
	require.NotEmpty(t, orderID)

	rec = f.do(t, http.MethodGet, "/api/orders", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders struct {
		Orders []orderResponse `json:"orders"`
	}
	decodeInto(t, rec, &orders)
	require.Len(t, orders.Orders, 1)
	require.Equal(t, int64(1081), orders.Orders[0].TotalMinor)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%s", orderID), user, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%s/timeline", orderID), user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var timeline struct {
		Events []timelineEventResponse `json:"events"`
	}
	decodeInto(t, rec, &timeline)
	require.NotEmpty(t, timeline.Events)

	// Чужой заказ не виден даже по прямой ссылке.
	stranger := tokenFor(t, "user-2")
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%s", orderID), stranger, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_CallbackRejectsTamperedSignature(t *testing.T) {
	f := newAPIFixture(t)
	f.seedProduct(t, "p1", 500, 5)
	user := tokenFor(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/cart/lines", user, cartLineRequest{ProductID: "p1", Qty: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/checkout/callback", user, callbackRequest{
		GatewayOrderID:   "order_x",
		GatewayPaymentID: "pay_x",
		Signature:        "forged",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "verification_failed", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, "/api/cart", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cartAfter cartResponse
	decodeInto(t, rec, &cartAfter)
	require.Len(t, cartAfter.Lines, 1, "failed verification must not consume the cart")
}

func TestCheckout_CallbackMalformedBody(t *testing.T) {
	f := newAPIFixture(t)
	user := tokenFor(t, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/callback", bytes.NewBufferString("{broken"))
	req.Header.Set("Authorization", user)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "malformed_body", errorKind(t, rec))
}

func TestAuth_InvalidToken(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_token", errorKind(t, rec))
}
