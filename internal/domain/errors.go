package domain

import "errors"

var (
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка сложения сумм в разных валютах.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// Ошибка суммы с избыточной точностью для валюты.
	ErrMoneyPrecision = errors.New("money precision exceeds currency minor unit")

	// Ошибка отсутствующего владельца корзины.
	ErrOwnerKeyRequired = errors.New("cart owner key is required")
	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartEmpty — попытка checkout для пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartItemNotFound возвращается, если позиция корзины не найдена.
	ErrCartItemNotFound = errors.New("cart item not found")
	// Ошибка некорректного количества (<= 0 вне пути удаления).
	ErrQtyInvalid = errors.New("quantity must be greater than zero")
	// Ошибка позиции без ссылки на товар или курс.
	ErrItemRefRequired = errors.New("cart item must reference a product or a course")

	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductInactive — товар снят с продажи.
	ErrProductInactive = errors.New("product is not active")
	// ErrVariantNotFound — вариант не принадлежит товару или не существует.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrCourseNotFound возвращается, если курс не найден.
	ErrCourseNotFound = errors.New("course not found")
	// ErrCourseUnpublished — курс не опубликован.
	ErrCourseUnpublished = errors.New("course is not published")
	// ErrCourseFree — бесплатный курс не проходит через корзину.
	ErrCourseFree = errors.New("free course cannot be added to cart")
	// ErrAlreadyEnrolled — пользователь уже записан на курс.
	ErrAlreadyEnrolled = errors.New("user is already enrolled in course")
	// ErrCourseAlreadyInCart — курс добавляется в корзину повторно.
	ErrCourseAlreadyInCart = errors.New("course is already in cart")

	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderImmutable — заказ финализирован и не допускает изменения состава.
	ErrOrderImmutable = errors.New("order is immutable after confirmation")
	// Ошибка несоответствия итога заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrIllegalTransition — запрошенный переход статуса не разрешён.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrNoPaidPayment — для заказа нет платежа в статусе paid.
	ErrNoPaidPayment = errors.New("order has no paid payment")
	// ErrRefundExceedsRemaining — возврат превышает остаток платежа.
	ErrRefundExceedsRemaining = errors.New("refund exceeds remaining payment amount")
	// ErrRefundAmountInvalid — сумма возврата должна быть положительной.
	ErrRefundAmountInvalid = errors.New("refund amount must be greater than zero")

	// ErrSubscriptionNotFound возвращается, если подписка не найдена.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrPlanNotFound возвращается, если тарифный план не найден.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanUnresolved — ни одна стратегия не смогла определить план по событию.
	ErrPlanUnresolved = errors.New("plan could not be resolved from event")

	// ErrEventAlreadyProcessed — событие с таким ID уже применено (идемпотентный повтор).
	ErrEventAlreadyProcessed = errors.New("event already processed")
	// ErrEventIDRequired — событие без идентификатора не принимается.
	ErrEventIDRequired = errors.New("event id is required")
	// ErrSignatureInvalid — подпись события не прошла проверку.
	ErrSignatureInvalid = errors.New("event signature verification failed")
	// ErrEventMalformed — тело события не соответствует ни одному известному формату.
	ErrEventMalformed = errors.New("event payload is malformed")

	// ErrCredentialsNotFound — учётные данные процессора ещё не сохранены.
	ErrCredentialsNotFound = errors.New("processor credentials not found")
	// ErrCredentialsInvalid — переданные учётные данные не прошли валидацию.
	ErrCredentialsInvalid = errors.New("processor credentials are invalid")
)

// ProcessorError — ошибка внешнего платёжного процессора. Message пригоден
// для показа администратору; Temporary отмечает транзиентные сбои сети.
type ProcessorError struct {
	Message   string
	Temporary bool
}

func (e *ProcessorError) Error() string {
	return "payment processor: " + e.Message
}

// AsProcessorError извлекает ProcessorError из цепочки ошибок.
func AsProcessorError(err error) (*ProcessorError, bool) {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNotFound относит ошибку к классу "не найдено" (HTTP 404).
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrCartNotFound, ErrCartItemNotFound, ErrOrderNotFound, ErrPaymentNotFound,
		ErrSubscriptionNotFound, ErrPlanNotFound, ErrProductNotFound,
		ErrVariantNotFound, ErrCourseNotFound, ErrCredentialsNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict относит ошибку к классу конфликтов (HTTP 409).
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrAlreadyEnrolled, ErrCourseAlreadyInCart, ErrRefundExceedsRemaining, ErrNoPaidPayment,
		ErrVersionConflict, ErrIllegalTransition, ErrOrderImmutable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation относит ошибку к классу некорректного ввода (HTTP 400).
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrQtyInvalid, ErrItemRefRequired, ErrCartEmpty, ErrOwnerKeyRequired,
		ErrCurrencyRequired, ErrCurrencyMismatch, ErrMoneyPrecision,
		ErrProductInactive, ErrCourseUnpublished, ErrCourseFree,
		ErrRefundAmountInvalid, ErrEventIDRequired, ErrEventMalformed,
		ErrCredentialsInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
