package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/piecom/internal/cache"
	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

// Service реализует мутации корзины. Проверка остатка здесь мягкая:
// она отсекает заведомо обречённые корзины, но ничего не резервирует —
// авторитетная проверка происходит в checkout при finalize. Инвентарь
// сервис корзины не трогает никогда.
type Service struct {
	products domain.ProductRepository
	carts    domain.CartRepository
	cache    cache.CartCache // опциональный; nil отключает кеширование
	logger   *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(products domain.ProductRepository, carts domain.CartRepository, cartCache cache.CartCache, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Service{
		products: products,
		carts:    carts,
		cache:    cartCache,
		logger:   logger,
	}
}

// AddLine добавляет товар в корзину; существующая позиция накапливает
// количество, а не заменяется. Снапшот цены берётся из текущей цены
// продажи.
func (s *Service) AddLine(ctx context.Context, userID, productID string, qty int32) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, domain.ErrLineQtyInvalid
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		// Корзина создаётся лениво при первом добавлении.
		now := time.Now().UTC()
		cart = domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
	} else if err != nil {
		return domain.Cart{}, err
	}

	requested := qty
	if line := cart.Line(productID); line != nil {
		requested += line.Qty
	}
	if requested > product.AvailableQty {
		return domain.Cart{}, fmt.Errorf("%w: product %s has %d left", domain.ErrInsufficientStock, productID, product.AvailableQty)
	}

	if line := cart.Line(productID); line != nil {
		line.Qty = requested
		line.PriceMinor = product.SellingPriceMinor
	} else {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:  productID,
			Qty:        qty,
			PriceMinor: product.SellingPriceMinor,
			AddedAt:    time.Now().UTC(),
		})
	}

	return s.persist(ctx, cart)
}

// UpdateLine заменяет количество существующей позиции.
func (s *Service) UpdateLine(ctx context.Context, userID, productID string, qty int32) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, domain.ErrLineQtyInvalid
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	line := cart.Line(productID)
	if line == nil {
		return domain.Cart{}, domain.ErrLineNotFound
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if qty > product.AvailableQty {
		return domain.Cart{}, fmt.Errorf("%w: product %s has %d left", domain.ErrInsufficientStock, productID, product.AvailableQty)
	}

	line.Qty = qty
	line.PriceMinor = product.SellingPriceMinor

	return s.persist(ctx, cart)
}

// RemoveLine удаляет позицию из корзины.
func (s *Service) RemoveLine(ctx context.Context, userID, productID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	if !cart.RemoveLine(productID) {
		return domain.Cart{}, domain.ErrLineNotFound
	}

	return s.persist(ctx, cart)
}

// Get возвращает корзину пользователя, по возможности из кеша.
func (s *Service) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, userID); err == nil {
			return *cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WithError(err).WithField("user_id", userID).Warn("cart cache read failed")
		}
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, &cart); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("cart cache write failed")
		}
	}

	return cart, nil
}

// persist пересчитывает суммы, сохраняет корзину и инвалидирует кеш.
// Пересчёт перед каждым сохранением держит инвариант
// totalPrice == Σ subtotal.
func (s *Service) persist(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	cart.Recalculate()
	cart.UpdatedAt = time.Now().UTC()

	if errs := cart.Validate(); len(errs) > 0 {
		return domain.Cart{}, errs[0]
	}

	if err := s.carts.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cart.UserID); err != nil {
			s.logger.WithError(err).WithField("user_id", cart.UserID).Warn("cart cache invalidation failed")
		}
	}

	return cart, nil
}
