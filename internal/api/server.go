package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
	"github.com/vladislavdragonenkov/piecom/internal/service/cart"
	"github.com/vladislavdragonenkov/piecom/internal/service/checkout"
)

// Server собирает HTTP API витрины поверх сервисного слоя.
type Server struct {
	products  domain.ProductRepository
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	carts     *cart.Service
	checkout  *checkout.Engine
	jwtSecret []byte
	logger    *log.Entry
}

// NewServer конструирует API-сервер с зависимостями.
func NewServer(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	carts *cart.Service,
	engine *checkout.Engine,
	jwtSecret []byte,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "api")
	}
	return &Server{
		products:  products,
		orders:    orders,
		timeline:  timeline,
		carts:     carts,
		checkout:  engine,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Router регистрирует все маршруты витрины.
func (s *Server) Router() *httprouter.Router {
	router := httprouter.New()

	router.GET("/api/products", s.listProducts)
	router.GET("/api/products/:id", s.getProduct)
	router.POST("/api/products", s.RequireAdmin(s.createProduct))
	router.PUT("/api/products/:id", s.RequireAdmin(s.updateProduct))

	router.GET("/api/cart", s.Authenticate(s.getCart))
	router.POST("/api/cart/lines", s.Authenticate(s.addCartLine))
	router.PATCH("/api/cart/lines/:productID", s.Authenticate(s.updateCartLine))
	router.DELETE("/api/cart/lines/:productID", s.Authenticate(s.removeCartLine))

	router.GET("/api/checkout/quote", s.Authenticate(s.quote))
	router.POST("/api/checkout/intent", s.Authenticate(s.openIntent))
	router.POST("/api/checkout/callback", s.Authenticate(s.finalize))

	router.GET("/api/orders", s.Authenticate(s.listOrders))
	router.GET("/api/orders/:id", s.Authenticate(s.getOrder))
	router.GET("/api/orders/:id/timeline", s.Authenticate(s.orderTimeline))

	return router
}

// Handler оборачивает роутер в CORS для браузерной витрины.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(s.Router())
}
