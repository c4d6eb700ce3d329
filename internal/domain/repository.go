package domain

import (
	"context"
	"time"
)

// CartRepository описывает требования к хранилищу корзин.
type CartRepository interface {
	// GetOrCreate возвращает корзину владельца, создавая её при первом обращении.
	GetOrCreate(ctx context.Context, ownerKey string) (Cart, error)
	// Get возвращает корзину по идентификатору или ErrCartNotFound.
	Get(ctx context.Context, id string) (Cart, error)
	// AddItem добавляет позицию с upsert-семантикой: при конфликте по
	// (cart, product, variant) количество увеличивается, строка не дублируется.
	AddItem(ctx context.Context, item CartItem) (CartItem, error)
	// SetQty меняет количество позиции; qty=0 удаляет позицию.
	SetQty(ctx context.Context, itemID string, qty int32) error
	// RemoveItem удаляет позицию или возвращает ErrCartItemNotFound.
	RemoveItem(ctx context.Context, itemID string) error
	// GetItem возвращает позицию по идентификатору.
	GetItem(ctx context.Context, itemID string) (CartItem, error)
	// Clear удаляет все позиции корзины.
	Clear(ctx context.Context, cartID string) error
}

// CatalogRepository — read-only доступ к каталогу товаров и курсов.
// Сам каталог ведётся внешней частью платформы.
type CatalogRepository interface {
	ProductByID(ctx context.Context, id string) (Product, error)
	CourseByID(ctx context.Context, id string) (Course, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ с позициями (компенсация неудачного checkout).
	Delete(ctx context.Context, id string) error
}

// PaymentRepository описывает требования к хранилищу платежей.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	// GetByIntentID находит платёж по внешнему идентификатору charge intent.
	GetByIntentID(ctx context.Context, intentID string) (Payment, error)
	// GetActiveByOrder возвращает платёж активной попытки оплаты заказа.
	GetActiveByOrder(ctx context.Context, orderID string) (Payment, error)
	Save(ctx context.Context, payment Payment) error
	Delete(ctx context.Context, id string) error
}

// SubscriptionRepository описывает требования к хранилищу подписок.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub Subscription) error
	GetByExternalID(ctx context.Context, externalID string) (Subscription, error)
	GetByUser(ctx context.Context, userID string) (Subscription, error)
	Save(ctx context.Context, sub Subscription) error
}

// PlanRepository — read-only доступ к тарифным планам.
type PlanRepository interface {
	All(ctx context.Context) ([]Plan, error)
	Get(ctx context.Context, id string) (Plan, error)
}

// ProcessedEventRepository — идемпотентный реестр применённых событий.
type ProcessedEventRepository interface {
	// Record фиксирует идентификатор события. Повторная запись того же ID
	// возвращает ErrEventAlreadyProcessed без изменения состояния.
	Record(ctx context.Context, event ProcessedEvent) error
	// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// EnrollmentRepository хранит записи на курсы.
type EnrollmentRepository interface {
	// Create создаёт запись; повтор для той же пары (course, user) — no-op.
	Create(ctx context.Context, enrollment Enrollment) (created bool, err error)
	Exists(ctx context.Context, courseID, userID string) (bool, error)
}

// CredentialRepository хранит запечатанные (зашифрованные) учётные данные
// платёжного процессора.
type CredentialRepository interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, sealed []byte) error
}

// Repositories — набор репозиториев, видимый внутри одной атомарной единицы.
type Repositories struct {
	Carts         CartRepository
	Orders        OrderRepository
	Payments      PaymentRepository
	Subscriptions SubscriptionRepository
	Events        ProcessedEventRepository
	Outbox        OutboxRepository
}

// UnitOfWork выполняет fn так, что все изменения через переданные репозитории
// применяются атомарно: запись в реестр событий и мутация состояния либо
// фиксируются вместе, либо не фиксируются вовсе.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(r Repositories) error) error
}
