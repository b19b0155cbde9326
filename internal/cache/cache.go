package cache

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

// ErrCacheMiss возвращается, когда корзины нет в кеше.
var ErrCacheMiss = errors.New("cache miss")

// CartCache — кеш корзин перед хранилищем. Кеш только ускоряет чтение:
// источником истины всегда остаётся репозиторий, а мутации инвалидируют
// ключ целиком.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}
