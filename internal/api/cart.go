package api

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type cartLineResponse struct {
	ProductID     string `json:"product_id"`
	Qty           int32  `json:"qty"`
	PriceMinor    int64  `json:"price_minor"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

type cartResponse struct {
	Lines      []cartLineResponse `json:"lines"`
	TotalMinor int64              `json:"total_minor"`
}

func toCartResponse(c domain.Cart) cartResponse {
	resp := cartResponse{
		Lines:      make([]cartLineResponse, 0, len(c.Lines)),
		TotalMinor: c.TotalMinor,
	}
	for _, line := range c.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:     line.ProductID,
			Qty:           line.Qty,
			PriceMinor:    line.PriceMinor,
			SubtotalMinor: line.SubtotalMinor,
		})
	}
	return resp
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userCart, err := s.carts.Get(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		// Пустая корзина для витрины не ошибка.
		if errors.Is(err, domain.ErrCartNotFound) {
			writeJSON(w, http.StatusOK, cartResponse{Lines: []cartLineResponse{}})
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userCart))
}

func (s *Server) addCartLine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload cartLineRequest
	if !decodeBody(w, r, &payload) {
		return
	}

	userCart, err := s.carts.AddLine(r.Context(), userIDFrom(r.Context()), payload.ProductID, payload.Qty)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userCart))
}

func (s *Server) updateCartLine(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var payload struct {
		Qty int32 `json:"qty"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}

	userCart, err := s.carts.UpdateLine(r.Context(), userIDFrom(r.Context()), ps.ByName("productID"), payload.Qty)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userCart))
}

func (s *Server) removeCartLine(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userCart, err := s.carts.RemoveLine(r.Context(), userIDFrom(r.Context()), ps.ByName("productID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(userCart))
}
