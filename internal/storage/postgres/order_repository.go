package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/piecom/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
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
		INSERT INTO orders (
			id, user_id,
			address_line1, address_line2, landmark, street, city, state, zip, country,
			delivery_fee_minor, surcharge_minor, total_minor, currency,
			gateway_order_id, gateway_payment_id, payment_state, delivery_state,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		order.ID, order.UserID,
		order.Address.AddressLine1, order.Address.AddressLine2, order.Address.Landmark,
		order.Address.Street, order.Address.City, order.Address.State, order.Address.Zip, order.Address.Country,
		order.DeliveryFeeMinor, order.SurchargeMinor, order.TotalMinor, order.Currency,
		order.GatewayOrderID, order.GatewayPaymentID, string(order.PaymentState), string(order.DeliveryState),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, product_id, qty, price_minor, subtotal_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			line.ID, order.ID, line.ProductID, line.Qty, line.PriceMinor, line.SubtotalMinor, line.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

const orderColumns = `
	id, user_id,
	address_line1, address_line2, landmark, street, city, state, zip, country,
	delivery_fee_minor, surcharge_minor, total_minor, currency,
	gateway_order_id, gateway_payment_id, payment_state, delivery_state,
	created_at, updated_at
`

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	return r.scanOrderWithLines(ctx, row)
}

// GetByGatewayPayment ищет заказ по идентификатору платежа шлюза.
func (r *orderRepository) GetByGatewayPayment(ctx context.Context, gatewayPaymentID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE gateway_payment_id = $1
	`, gatewayPaymentID)

	return r.scanOrderWithLines(ctx, row)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}

		lines, err := r.loadLines(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Lines = lines
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

// UpdateDeliveryStatus меняет стадию доставки — единственную изменяемую
// часть заказа после создания.
func (r *orderRepository) UpdateDeliveryStatus(ctx context.Context, orderID string, state domain.DeliveryState) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET delivery_state = $2,
		    updated_at = $3
		WHERE id = $1
	`, orderID, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		paymentState  string
		deliveryState string
	)

	if err := row.Scan(
		&order.ID, &order.UserID,
		&order.Address.AddressLine1, &order.Address.AddressLine2, &order.Address.Landmark,
		&order.Address.Street, &order.Address.City, &order.Address.State, &order.Address.Zip, &order.Address.Country,
		&order.DeliveryFeeMinor, &order.SurchargeMinor, &order.TotalMinor, &order.Currency,
		&order.GatewayOrderID, &order.GatewayPaymentID, &paymentState, &deliveryState,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	order.PaymentState = domain.PaymentState(paymentState)
	order.DeliveryState = domain.DeliveryState(deliveryState)
	return order, nil
}

func (r *orderRepository) scanOrderWithLines(ctx context.Context, row rowScanner) (domain.Order, error) {
	order, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, err
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, qty, price_minor, subtotal_minor, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Qty, &line.PriceMinor, &line.SubtotalMinor, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
