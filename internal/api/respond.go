package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorKind(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind}})
}

// errorStatus сопоставляет доменную ошибку паре (HTTP-статус, kind).
type errorStatus struct {
	err    error
	status int
	kind   string
}

var errorTable = []errorStatus{
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrCartNotFound, http.StatusNotFound, "cart_not_found"},
	{domain.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrCartEmpty, http.StatusConflict, "cart_empty"},
	{domain.ErrProductExists, http.StatusConflict, "product_exists"},
	{domain.ErrOrderExists, http.StatusConflict, "order_exists"},
	{domain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{domain.ErrStockConflict, http.StatusConflict, "stock_conflict"},
	{domain.ErrAmountMismatch, http.StatusConflict, "amount_mismatch"},
	{domain.ErrFinalizeInProgress, http.StatusConflict, "finalize_in_progress"},
	{domain.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{domain.ErrVerificationFailed, http.StatusBadRequest, "verification_failed"},
	{domain.ErrUserIDRequired, http.StatusBadRequest, "user_id_required"},
	{domain.ErrProductIDRequired, http.StatusBadRequest, "product_id_required"},
	{domain.ErrProductNameRequired, http.StatusBadRequest, "product_name_required"},
	{domain.ErrProductPriceInvalid, http.StatusBadRequest, "product_price_invalid"},
	{domain.ErrSellingPriceAboveBase, http.StatusBadRequest, "selling_price_above_base"},
	{domain.ErrProductQtyNegative, http.StatusBadRequest, "product_qty_negative"},
	{domain.ErrLineQtyInvalid, http.StatusBadRequest, "line_qty_invalid"},
	{domain.ErrCurrencyRequired, http.StatusBadRequest, "currency_required"},
	{domain.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable"},
}

// writeDomainError переводит ошибку сервисного слоя в HTTP-ответ вида
// {"error":{"kind":...}} и не раскрывает внутренние детали на 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			writeJSON(w, entry.status, errorBody{Error: errorDetail{
				Kind:    entry.kind,
				Message: entry.err.Error(),
			}})
			return
		}
	}

	s.logger.WithError(err).WithField("path", r.URL.Path).Error("unhandled api error")
	writeErrorKind(w, http.StatusInternalServerError, "internal")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErrorKind(w, http.StatusBadRequest, "malformed_body")
		return false
	}
	return true
}
