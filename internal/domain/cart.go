package domain

import "time"

// CartLine представляет одну позицию корзины.
type CartLine struct {
	ProductID string
	Qty       int32
	// PriceMinor — снапшот цены на момент добавления. Поле справочное:
	// при finalize движок всегда пересчитывает суммы по актуальной цене
	// товара и не доверяет снапшоту.
	PriceMinor int64
	// SubtotalMinor = PriceMinor * Qty, пересчитывается при каждой мутации.
	SubtotalMinor int64
	AddedAt       time.Time
}

// Cart — корзина пользователя. На пользователя существует не более одной
// корзины; пустая корзина эквивалентна отсутствующей для checkout.
type Cart struct {
	UserID string
	Lines  []CartLine
	// TotalMinor — производная сумма: всегда равна сумме subtotal позиций.
	TotalMinor int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Recalculate пересчитывает subtotal каждой позиции и общую сумму корзины.
// Вызывается перед каждым сохранением.
func (c *Cart) Recalculate() {
	var total int64
	for i := range c.Lines {
		c.Lines[i].SubtotalMinor = c.Lines[i].PriceMinor * int64(c.Lines[i].Qty)
		total += c.Lines[i].SubtotalMinor
	}
	c.TotalMinor = total
}

// Line возвращает указатель на позицию с данным товаром или nil.
func (c *Cart) Line(productID string) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// RemoveLine удаляет позицию; возвращает false, если товара в корзине нет.
func (c *Cart) RemoveLine(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// IsEmpty сообщает, пригодна ли корзина для checkout.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Validate проверяет инварианты корзины.
func (c *Cart) Validate() []error {
	var errs []error

	if c.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}

	seen := make(map[string]struct{}, len(c.Lines))
	var total int64
	for _, line := range c.Lines {
		if line.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if _, dup := seen[line.ProductID]; dup {
			errs = append(errs, ErrCartLineDuplicate)
		}
		seen[line.ProductID] = struct{}{}
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.PriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		total += line.SubtotalMinor
	}
	if total != c.TotalMinor {
		errs = append(errs, ErrCartTotalMismatch)
	}

	return errs
}
