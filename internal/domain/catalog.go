package domain

import "time"

// Product — товар каталога. CRUD каталога живёт вне этого сервиса;
// здесь только то, что нужно для валидации корзины и снапшота заказа.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	Currency   string
	Active     bool
	Variants   []Variant
}

// Variant — вариант товара (размер, цвет) со своей ценой.
type Variant struct {
	ID         string
	ProductID  string
	Name       string
	PriceMinor int64
}

// VariantByID находит вариант товара по идентификатору.
func (p Product) VariantByID(variantID string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}

// UnitPrice возвращает актуальную цену единицы: цену варианта, если он
// выбран, иначе базовую цену товара.
func (p Product) UnitPrice(variantID string) (Money, error) {
	if variantID == "" {
		return NewMoney(p.PriceMinor, p.Currency), nil
	}
	v, ok := p.VariantByID(variantID)
	if !ok {
		return Money{}, ErrVariantNotFound
	}
	return NewMoney(v.PriceMinor, p.Currency), nil
}

// Course — платный курс. Бесплатные курсы в корзину не попадают.
type Course struct {
	ID         string
	Title      string
	PriceMinor int64
	Currency   string
	Published  bool
}

// IsFree сообщает, является ли курс бесплатным.
func (c Course) IsFree() bool {
	return c.PriceMinor == 0
}

// Enrollment — запись пользователя на курс; побочный эффект успешной оплаты.
// Уникальна по паре (course, user).
type Enrollment struct {
	ID        string
	CourseID  string
	UserID    string
	OrderID   string
	CreatedAt time.Time
}
