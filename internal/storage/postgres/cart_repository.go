package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, total_minor, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&cart.UserID, &cart.TotalMinor, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, qty, price_minor, subtotal_minor, added_at
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY added_at ASC, product_id ASC
	`, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Qty, &line.PriceMinor, &line.SubtotalMinor, &line.AddedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart line: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart lines: %w", err)
	}

	return cart, nil
}

// Save перезаписывает корзину целиком: upsert заголовка и замена всех
// позиций в одной транзакции. Корзина маленькая, поэтому полная замена
// проще и надёжнее поэлементных diff-ов.
func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (user_id, total_minor, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE
		SET total_minor = EXCLUDED.total_minor,
		    updated_at = EXCLUDED.updated_at
	`, cart.UserID, cart.TotalMinor, cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, cart.UserID); err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}

	for _, line := range cart.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO cart_lines (user_id, product_id, qty, price_minor, subtotal_minor, added_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, cart.UserID, line.ProductID, line.Qty, line.PriceMinor, line.SubtotalMinor, line.AddedAt); err != nil {
			return fmt.Errorf("insert cart line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save cart: %w", err)
	}

	return nil
}

// Delete удаляет корзину; отсутствие корзины не считается ошибкой,
// чтобы повтор finalize проходил спокойно.
func (r *cartRepository) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
