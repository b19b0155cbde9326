package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

// cartRepositoryInMemory — in-memory реализация CartRepository,
// по одной корзине на пользователя.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		items: make(map[string]domain.Cart),
	}
}

// Get возвращает копию корзины пользователя или ErrCartNotFound.
func (r *cartRepositoryInMemory) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.items[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

// Save перезаписывает корзину пользователя (last-write-wins).
func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) error {
	if cart.UserID == "" {
		return domain.ErrUserIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[cart.UserID] = cloneCart(cart)
	return nil
}

// Delete удаляет корзину; отсутствие корзины ошибкой не считается,
// чтобы повтор finalize после частичного сбоя оставался безопасным.
func (r *cartRepositoryInMemory) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, userID)
	return nil
}

// cloneCart копирует корзину вместе с позициями, чтобы избежать
// непредсказуемых мутаций извне.
func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Lines = append([]domain.CartLine(nil), src.Lines...)
	return dst
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
