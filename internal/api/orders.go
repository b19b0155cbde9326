package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

const defaultListOrdersLimit = 100

type orderLineResponse struct {
	ProductID     string `json:"product_id"`
	Qty           int32  `json:"qty"`
	PriceMinor    int64  `json:"price_minor"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	Lines            []orderLineResponse `json:"lines"`
	Address          addressPayload      `json:"address"`
	DeliveryFeeMinor int64               `json:"delivery_fee_minor"`
	SurchargeMinor   int64               `json:"surcharge_minor"`
	TotalMinor       int64               `json:"total_minor"`
	Currency         string              `json:"currency"`
	PaymentState     string              `json:"payment_state"`
	DeliveryState    string              `json:"delivery_state"`
	CreatedAt        time.Time           `json:"created_at"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID: o.ID,
		Address: addressPayload{
			AddressLine1: o.Address.AddressLine1,
			AddressLine2: o.Address.AddressLine2,
			Landmark:     o.Address.Landmark,
			Street:       o.Address.Street,
			City:         o.Address.City,
			State:        o.Address.State,
			Zip:          o.Address.Zip,
			Country:      o.Address.Country,
		},
		DeliveryFeeMinor: o.DeliveryFeeMinor,
		SurchargeMinor:   o.SurchargeMinor,
		TotalMinor:       o.TotalMinor,
		Currency:         o.Currency,
		PaymentState:     string(o.PaymentState),
		DeliveryState:    string(o.DeliveryState),
		CreatedAt:        o.CreatedAt,
	}
	resp.Lines = make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductID:     line.ProductID,
			Qty:           line.Qty,
			PriceMinor:    line.PriceMinor,
			SubtotalMinor: line.SubtotalMinor,
		})
	}
	return resp
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := defaultListOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorKind(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	orders, err := s.orders.ListByUser(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": result})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	order, ok := s.loadOwnOrder(w, r, ps.ByName("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) orderTimeline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	order, ok := s.loadOwnOrder(w, r, ps.ByName("id"))
	if !ok {
		return
	}

	events, err := s.timeline.List(order.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": result})
}

// loadOwnOrder читает заказ и скрывает чужие заказы за 404.
func (s *Server) loadOwnOrder(w http.ResponseWriter, r *http.Request, orderID string) (domain.Order, bool) {
	order, err := s.orders.Get(r.Context(), orderID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return domain.Order{}, false
	}

	if order.UserID != userIDFrom(r.Context()) {
		writeErrorKind(w, http.StatusNotFound, "order_not_found")
		return domain.Order{}, false
	}

	return order, true
}
