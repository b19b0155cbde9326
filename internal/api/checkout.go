package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/service/checkout"
)

type quoteLineResponse struct {
	ProductID     string `json:"product_id"`
	Qty           int32  `json:"qty"`
	PriceMinor    int64  `json:"price_minor"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

type quoteResponse struct {
	Lines            []quoteLineResponse `json:"lines"`
	ItemsMinor       int64               `json:"items_minor"`
	DeliveryFeeMinor int64               `json:"delivery_fee_minor"`
	SurchargeMinor   int64               `json:"surcharge_minor"`
	TotalMinor       int64               `json:"total_minor"`
	Currency         string              `json:"currency"`
}

type intentResponse struct {
	GatewayOrderID string        `json:"gateway_order_id"`
	AmountMinor    int64         `json:"amount_minor"`
	Currency       string        `json:"currency"`
	Quote          quoteResponse `json:"quote"`
}

type addressPayload struct {
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	Landmark     string `json:"landmark"`
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
}

type callbackRequest struct {
	GatewayOrderID   string         `json:"gateway_order_id"`
	GatewayPaymentID string         `json:"gateway_payment_id"`
	Signature        string         `json:"signature"`
	Address          addressPayload `json:"address"`
}

func toQuoteResponse(q domain.Quote) quoteResponse {
	resp := quoteResponse{
		Lines:            make([]quoteLineResponse, 0, len(q.Lines)),
		ItemsMinor:       q.ItemsMinor,
		DeliveryFeeMinor: q.DeliveryFeeMinor,
		SurchargeMinor:   q.SurchargeMinor,
		TotalMinor:       q.TotalMinor,
		Currency:         q.Currency,
	}
	for _, line := range q.Lines {
		resp.Lines = append(resp.Lines, quoteLineResponse{
			ProductID:     line.ProductID,
			Qty:           line.Qty,
			PriceMinor:    line.PriceMinor,
			SubtotalMinor: line.SubtotalMinor,
		})
	}
	return resp
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	quote, err := s.checkout.Quote(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(quote))
}

func (s *Server) openIntent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	intent, quote, err := s.checkout.OpenIntent(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, intentResponse{
		GatewayOrderID: intent.GatewayOrderID,
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		Quote:          toQuoteResponse(quote),
	})
}

// finalize принимает подписанный callback шлюза и превращает корзину в заказ.
func (s *Server) finalize(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload callbackRequest
	if !decodeBody(w, r, &payload) {
		return
	}

	order, err := s.checkout.Finalize(r.Context(), checkout.FinalizeRequest{
		UserID:           userIDFrom(r.Context()),
		GatewayOrderID:   payload.GatewayOrderID,
		GatewayPaymentID: payload.GatewayPaymentID,
		Signature:        payload.Signature,
		Address: domain.DeliveryAddress{
			AddressLine1: payload.Address.AddressLine1,
			AddressLine2: payload.Address.AddressLine2,
			Landmark:     payload.Address.Landmark,
			Street:       payload.Address.Street,
			City:         payload.Address.City,
			State:        payload.Address.State,
			Zip:          payload.Address.Zip,
			Country:      payload.Address.Country,
		},
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"order_id": order.ID})
}
