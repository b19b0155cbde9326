package domain

// QuoteLine — позиция авторитетного расчёта стоимости: цена берётся из
// актуальной записи товара, а не из снапшота корзины.
type QuoteLine struct {
	ProductID     string
	Qty           int32
	PriceMinor    int64
	SubtotalMinor int64
}

// Quote — авторитетный расчёт суммы к оплате. Считается сервером и при
// создании intent, и повторно при finalize; сумма клиента никогда не
// используется.
type Quote struct {
	Lines            []QuoteLine
	ItemsMinor       int64
	DeliveryFeeMinor int64
	SurchargeMinor   int64
	TotalMinor       int64
	Currency         string
}

// Surcharge считает комиссию шлюза целочисленной арифметикой с округлением
// half-up: base * bp / 10000, где bp — ставка в базисных пунктах.
// Никакой плавающей точки: расхождение в один пайс между суммой intent и
// суммой заказа делает заказ несверяемым.
func Surcharge(baseMinor int64, basisPoints int64) int64 {
	if baseMinor <= 0 || basisPoints <= 0 {
		return 0
	}
	return (baseMinor*basisPoints + 5000) / 10000
}

// BuildQuote собирает расчёт из пар (позиция корзины, актуальный товар).
// Комиссия считается от базы "товары + доставка" — сама комиссия в базу
// не входит.
func BuildQuote(lines []QuoteLine, deliveryFeeMinor, surchargeBP int64, currency string) Quote {
	q := Quote{
		Lines:            lines,
		DeliveryFeeMinor: deliveryFeeMinor,
		Currency:         currency,
	}
	for i := range q.Lines {
		q.Lines[i].SubtotalMinor = q.Lines[i].PriceMinor * int64(q.Lines[i].Qty)
		q.ItemsMinor += q.Lines[i].SubtotalMinor
	}
	q.SurchargeMinor = Surcharge(q.ItemsMinor+q.DeliveryFeeMinor, surchargeBP)
	q.TotalMinor = q.ItemsMinor + q.DeliveryFeeMinor + q.SurchargeMinor
	return q
}
