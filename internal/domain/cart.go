package domain

import (
	"strings"
	"time"
)

// Cart — корзина, принадлежащая ровно одному владельцу: либо пользователю,
// либо анонимной сессии. Создаётся лениво при первом обращении.
type Cart struct {
	ID        string
	OwnerKey  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem — одна позиция корзины: товар (с опциональным вариантом) или курс.
// Цена в позиции не хранится — итоги пересчитываются по каталогу на каждом чтении.
type CartItem struct {
	ID        string
	CartID    string
	ProductID string
	VariantID string // пустая строка, если вариант не выбран
	CourseID  string
	Qty       int32
	CreatedAt time.Time
}

// IsProduct сообщает, ссылается ли позиция на товар.
func (i CartItem) IsProduct() bool {
	return i.ProductID != ""
}

// IsCourse сообщает, ссылается ли позиция на курс.
func (i CartItem) IsCourse() bool {
	return i.CourseID != ""
}

// Validate проверяет базовые инварианты позиции.
func (i CartItem) Validate() []error {
	var errs []error

	switch {
	case i.IsProduct() && i.IsCourse():
		errs = append(errs, ErrItemRefRequired)
	case !i.IsProduct() && !i.IsCourse():
		errs = append(errs, ErrItemRefRequired)
	}
	if i.IsProduct() && i.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}
	// Для курсов количество всегда фиксировано.
	if i.IsCourse() && i.Qty != 1 {
		errs = append(errs, ErrQtyInvalid)
	}

	return errs
}

// UserOwnerKey строит ключ владельца для авторизованного пользователя.
func UserOwnerKey(userID string) string {
	return "user:" + userID
}

// AnonOwnerKey строит ключ владельца для анонимной сессии.
func AnonOwnerKey(sessionID string) string {
	return "anon:" + sessionID
}

// OwnerUserID возвращает ID пользователя из ключа владельца или пустую строку,
// если корзина анонимная.
func OwnerUserID(ownerKey string) string {
	if rest, ok := strings.CutPrefix(ownerKey, "user:"); ok {
		return rest
	}
	return ""
}

// CartTotals — итоги корзины, пересчитанные по актуальным ценам каталога.
type CartTotals struct {
	Subtotal    Money
	HasProducts bool
	HasCourses  bool
}

// Mixed сообщает, содержит ли корзина одновременно товары и курсы.
func (t CartTotals) Mixed() bool {
	return t.HasProducts && t.HasCourses
}
