package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

type productPayload struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	PriceMinor        int64  `json:"price_minor"`
	SellingPriceMinor int64  `json:"selling_price_minor"`
	AvailableQty      int32  `json:"available_qty"`
}

type productResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Category          string `json:"category,omitempty"`
	PriceMinor        int64  `json:"price_minor"`
	SellingPriceMinor int64  `json:"selling_price_minor"`
	DiscountPercent   int32  `json:"discount_percent"`
	AvailableQty      int32  `json:"available_qty"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Category:          p.Category,
		PriceMinor:        p.PriceMinor,
		SellingPriceMinor: p.SellingPriceMinor,
		DiscountPercent:   p.DiscountPercent,
		AvailableQty:      p.AvailableQty,
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorKind(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	products, err := s.products.List(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result := make([]productResponse, 0, len(products))
	for _, p := range products {
		result = append(result, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": result})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	product, err := s.products.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload productPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:                uuid.NewString(),
		Name:              payload.Name,
		Description:       payload.Description,
		Category:          payload.Category,
		PriceMinor:        payload.PriceMinor,
		SellingPriceMinor: payload.SellingPriceMinor,
		AvailableQty:      payload.AvailableQty,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	product.RecalculateDiscount()

	if errs := product.Validate(); len(errs) > 0 {
		s.writeDomainError(w, r, errs[0])
		return
	}

	if err := s.products.Create(r.Context(), product); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.WithField("product_id", product.ID).Info("product created")
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var payload productPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	product, err := s.products.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	product.Name = payload.Name
	product.Description = payload.Description
	product.Category = payload.Category
	product.PriceMinor = payload.PriceMinor
	product.SellingPriceMinor = payload.SellingPriceMinor
	product.AvailableQty = payload.AvailableQty
	product.UpdatedAt = time.Now().UTC()
	product.RecalculateDiscount()

	if errs := product.Validate(); len(errs) > 0 {
		s.writeDomainError(w, r, errs[0])
		return
	}

	if err := s.products.Update(r.Context(), product); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}
