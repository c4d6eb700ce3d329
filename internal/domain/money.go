package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money — денежная сумма в минимальных единицах валюты (копейки, центы).
// Вся арифметика в ядре выполняется на int64; decimal используется только
// на границе для разбора и форматирования строковых сумм.
type Money struct {
	AmountMinor int64
	Currency    string
}

// Валюты без дробной части (минимальная единица равна целой).
var zeroExponentCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
}

// minorExponent возвращает число десятичных знаков минимальной единицы валюты.
func minorExponent(currency string) int32 {
	if zeroExponentCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// NewMoney создаёт Money из суммы в минимальных единицах.
func NewMoney(amountMinor int64, currency string) Money {
	return Money{AmountMinor: amountMinor, Currency: strings.ToUpper(currency)}
}

// ParseMoney разбирает десятичную строку ("25.00") в Money без участия float.
func ParseMoney(value, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, ErrCurrencyRequired
	}

	dec, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", value, err)
	}

	exp := minorExponent(currency)
	scaled := dec.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %q has more than %d decimal places", ErrMoneyPrecision, value, exp)
	}

	return Money{AmountMinor: scaled.IntPart(), Currency: currency}, nil
}

// Add складывает две суммы одной валюты.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// Sub вычитает other из m (валюты обязаны совпадать).
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{AmountMinor: m.AmountMinor - other.AmountMinor, Currency: m.Currency}, nil
}

// MulQty умножает сумму на количество единиц.
func (m Money) MulQty(qty int32) Money {
	return Money{AmountMinor: m.AmountMinor * int64(qty), Currency: m.Currency}
}

// IsZero сообщает, равна ли сумма нулю.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsNegative сообщает, отрицательна ли сумма.
func (m Money) IsNegative() bool {
	return m.AmountMinor < 0
}

// Equal сравнивает суммы с учётом валюты.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.AmountMinor == other.AmountMinor
}

// String возвращает десятичное представление ("25.00 USD").
func (m Money) String() string {
	exp := minorExponent(m.Currency)
	dec := decimal.New(m.AmountMinor, -exp)
	return dec.StringFixed(exp) + " " + m.Currency
}

// DecimalString возвращает только число без кода валюты ("25.00").
func (m Money) DecimalString() string {
	exp := minorExponent(m.Currency)
	return decimal.New(m.AmountMinor, -exp).StringFixed(exp)
}
