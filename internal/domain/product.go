package domain

import "time"

// Product описывает товар каталога. Цены хранятся в минимальных денежных
// единицах (пайсы), остаток мутируется только условным декрементом на складе.
type Product struct {
	ID string
	// Name — название товара для витрины.
	Name        string
	Description string
	Category    string
	// PriceMinor — базовая цена до скидки.
	PriceMinor int64
	// SellingPriceMinor — фактическая цена продажи; именно её движок
	// берёт как авторитетную цену на момент finalize.
	SellingPriceMinor int64
	// DiscountPercent — производное поле: (price - selling) / price * 100.
	DiscountPercent int32
	// AvailableQty — доступный остаток; неотрицательный инвариант
	// обеспечивается условным декрементом в хранилище.
	AvailableQty int32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate проверяет инварианты товара и возвращает список замечаний.
func (p *Product) Validate() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 || p.SellingPriceMinor < 0 {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.SellingPriceMinor > p.PriceMinor {
		errs = append(errs, ErrSellingPriceAboveBase)
	}
	if p.AvailableQty < 0 {
		errs = append(errs, ErrProductQtyNegative)
	}

	return errs
}

// RecalculateDiscount пересчитывает процент скидки из пары цен.
func (p *Product) RecalculateDiscount() {
	if p.PriceMinor <= 0 || p.SellingPriceMinor <= 0 {
		p.DiscountPercent = 0
		return
	}
	p.DiscountPercent = int32((p.PriceMinor - p.SellingPriceMinor) * 100 / p.PriceMinor)
}
