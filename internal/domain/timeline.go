package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа или попытки
// checkout. Reconciliation-события (stock conflict, amount mismatch после
// списания денег) попадают сюда же для ручного разбора.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
