package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
)

// Service реализует операции корзины: validate на добавлении, пересчёт
// итогов по каталогу на каждом чтении.
type Service struct {
	carts       domain.CartRepository
	catalog     domain.CatalogRepository
	enrollments domain.EnrollmentRepository
	logger      *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(
	carts domain.CartRepository,
	catalog domain.CatalogRepository,
	enrollments domain.EnrollmentRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{
		carts:       carts,
		catalog:     catalog,
		enrollments: enrollments,
		logger:      logger,
	}
}

// AddItemRequest — запрос на добавление позиции: товар (с опциональным
// вариантом) либо курс.
type AddItemRequest struct {
	ProductID string
	VariantID string
	CourseID  string
	Qty       int32
}

// PricedItem — позиция корзины с актуальной ценой из каталога.
type PricedItem struct {
	Item      domain.CartItem
	Title     string
	UnitPrice domain.Money
	Total     domain.Money
}

// View — корзина с пересчитанными итогами. Итоги никогда не кешируются.
type View struct {
	Cart   domain.Cart
	Items  []PricedItem
	Totals domain.CartTotals
}

// GetOrCreate возвращает корзину владельца с итогами, создавая её при
// первом обращении.
func (s *Service) GetOrCreate(ctx context.Context, ownerKey string) (View, error) {
	if ownerKey == "" {
		return View{}, domain.ErrOwnerKeyRequired
	}

	cart, err := s.carts.GetOrCreate(ctx, ownerKey)
	if err != nil {
		return View{}, fmt.Errorf("get or create cart: %w", err)
	}
	return s.buildView(ctx, cart)
}

// AddItem валидирует позицию по каталогу и добавляет её в корзину владельца.
// Повтор товара увеличивает количество, повтор курса — конфликт.
func (s *Service) AddItem(ctx context.Context, ownerKey string, req AddItemRequest) (View, error) {
	if ownerKey == "" {
		return View{}, domain.ErrOwnerKeyRequired
	}

	cart, err := s.carts.GetOrCreate(ctx, ownerKey)
	if err != nil {
		return View{}, fmt.Errorf("get or create cart: %w", err)
	}

	item := domain.CartItem{
		ID:        uuid.NewString(),
		CartID:    cart.ID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		CourseID:  req.CourseID,
		Qty:       req.Qty,
		CreatedAt: time.Now().UTC(),
	}
	if item.IsCourse() && item.Qty == 0 {
		item.Qty = 1
	}
	if errs := item.Validate(); len(errs) > 0 {
		return View{}, errs[0]
	}

	switch {
	case item.IsProduct():
		if err := s.validateProduct(ctx, item); err != nil {
			return View{}, err
		}
	case item.IsCourse():
		if err := s.validateCourse(ctx, cart, item); err != nil {
			return View{}, err
		}
	}

	if _, err := s.carts.AddItem(ctx, item); err != nil {
		return View{}, fmt.Errorf("add cart item: %w", err)
	}

	cart, err = s.carts.Get(ctx, cart.ID)
	if err != nil {
		return View{}, fmt.Errorf("reload cart: %w", err)
	}
	return s.buildView(ctx, cart)
}

// SetQuantity меняет количество позиции. Ноль удаляет позицию, это
// единственный путь удаления через запрос количества.
func (s *Service) SetQuantity(ctx context.Context, ownerKey, itemID string, qty int32) (View, error) {
	cart, item, err := s.ownedItem(ctx, ownerKey, itemID)
	if err != nil {
		return View{}, err
	}

	switch {
	case qty < 0:
		return View{}, domain.ErrQtyInvalid
	case qty == 0:
		err = s.carts.RemoveItem(ctx, item.ID)
	case item.IsCourse() && qty != 1:
		return View{}, domain.ErrQtyInvalid
	default:
		err = s.carts.SetQty(ctx, item.ID, qty)
	}
	if err != nil {
		return View{}, fmt.Errorf("set quantity: %w", err)
	}

	cart, err = s.carts.Get(ctx, cart.ID)
	if err != nil {
		return View{}, fmt.Errorf("reload cart: %w", err)
	}
	return s.buildView(ctx, cart)
}

// RemoveItem удаляет позицию из корзины владельца.
func (s *Service) RemoveItem(ctx context.Context, ownerKey, itemID string) (View, error) {
	cart, item, err := s.ownedItem(ctx, ownerKey, itemID)
	if err != nil {
		return View{}, err
	}

	if err := s.carts.RemoveItem(ctx, item.ID); err != nil {
		return View{}, fmt.Errorf("remove cart item: %w", err)
	}

	cart, err = s.carts.Get(ctx, cart.ID)
	if err != nil {
		return View{}, fmt.Errorf("reload cart: %w", err)
	}
	return s.buildView(ctx, cart)
}

// Clear удаляет все позиции корзины владельца.
func (s *Service) Clear(ctx context.Context, ownerKey string) error {
	if ownerKey == "" {
		return domain.ErrOwnerKeyRequired
	}

	cart, err := s.carts.GetOrCreate(ctx, ownerKey)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}
	if err := s.carts.Clear(ctx, cart.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Price возвращает позиции корзины с актуальными ценами и итогами.
// Используется и при чтении корзины, и при повторной валидации в checkout.
func (s *Service) Price(ctx context.Context, cart domain.Cart) ([]PricedItem, domain.CartTotals, error) {
	var (
		items  []PricedItem
		totals domain.CartTotals
	)

	for _, item := range cart.Items {
		priced, err := s.priceItem(ctx, item)
		if err != nil {
			return nil, domain.CartTotals{}, err
		}

		if item.IsProduct() {
			totals.HasProducts = true
		} else {
			totals.HasCourses = true
		}

		if totals.Subtotal.Currency == "" {
			totals.Subtotal = priced.Total
		} else {
			totals.Subtotal, err = totals.Subtotal.Add(priced.Total)
			if err != nil {
				return nil, domain.CartTotals{}, err
			}
		}
		items = append(items, priced)
	}

	return items, totals, nil
}

// Revalidate повторяет проверки добавления для каждой позиции и возвращает
// позиции с актуальными ценами. Снапшоту корзины цены не доверяются,
// checkout всегда перечитывает каталог.
func (s *Service) Revalidate(ctx context.Context, cart domain.Cart) ([]PricedItem, domain.CartTotals, error) {
	for _, item := range cart.Items {
		switch {
		case item.IsProduct():
			if err := s.validateProduct(ctx, item); err != nil {
				return nil, domain.CartTotals{}, err
			}
		case item.IsCourse():
			course, err := s.catalog.CourseByID(ctx, item.CourseID)
			if err != nil {
				return nil, domain.CartTotals{}, err
			}
			if !course.Published {
				return nil, domain.CartTotals{}, domain.ErrCourseUnpublished
			}
			if course.IsFree() {
				return nil, domain.CartTotals{}, domain.ErrCourseFree
			}
			if userID := domain.OwnerUserID(cart.OwnerKey); userID != "" {
				enrolled, err := s.enrollments.Exists(ctx, item.CourseID, userID)
				if err != nil {
					return nil, domain.CartTotals{}, fmt.Errorf("check enrollment: %w", err)
				}
				if enrolled {
					return nil, domain.CartTotals{}, domain.ErrAlreadyEnrolled
				}
			}
		}
	}
	return s.Price(ctx, cart)
}

func (s *Service) buildView(ctx context.Context, cart domain.Cart) (View, error) {
	items, totals, err := s.Price(ctx, cart)
	if err != nil {
		return View{}, err
	}
	return View{Cart: cart, Items: items, Totals: totals}, nil
}

func (s *Service) priceItem(ctx context.Context, item domain.CartItem) (PricedItem, error) {
	if item.IsProduct() {
		product, err := s.catalog.ProductByID(ctx, item.ProductID)
		if err != nil {
			return PricedItem{}, fmt.Errorf("price product %s: %w", item.ProductID, err)
		}
		unit, err := product.UnitPrice(item.VariantID)
		if err != nil {
			return PricedItem{}, err
		}
		return PricedItem{
			Item:      item,
			Title:     product.Name,
			UnitPrice: unit,
			Total:     unit.MulQty(item.Qty),
		}, nil
	}

	course, err := s.catalog.CourseByID(ctx, item.CourseID)
	if err != nil {
		return PricedItem{}, fmt.Errorf("price course %s: %w", item.CourseID, err)
	}
	unit := domain.NewMoney(course.PriceMinor, course.Currency)
	return PricedItem{
		Item:      item,
		Title:     course.Title,
		UnitPrice: unit,
		Total:     unit.MulQty(item.Qty),
	}, nil
}

func (s *Service) validateProduct(ctx context.Context, item domain.CartItem) error {
	product, err := s.catalog.ProductByID(ctx, item.ProductID)
	if err != nil {
		return err
	}
	if !product.Active {
		return domain.ErrProductInactive
	}
	if item.VariantID != "" {
		if _, ok := product.VariantByID(item.VariantID); !ok {
			return domain.ErrVariantNotFound
		}
	}
	return nil
}

func (s *Service) validateCourse(ctx context.Context, cart domain.Cart, item domain.CartItem) error {
	course, err := s.catalog.CourseByID(ctx, item.CourseID)
	if err != nil {
		return err
	}
	if !course.Published {
		return domain.ErrCourseUnpublished
	}
	// Бесплатные курсы выдаются мгновенно и через корзину не проходят.
	if course.IsFree() {
		return domain.ErrCourseFree
	}

	for _, existing := range cart.Items {
		if existing.CourseID == item.CourseID {
			return domain.ErrCourseAlreadyInCart
		}
	}

	if userID := domain.OwnerUserID(cart.OwnerKey); userID != "" {
		enrolled, err := s.enrollments.Exists(ctx, item.CourseID, userID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if enrolled {
			return domain.ErrAlreadyEnrolled
		}
	}
	return nil
}

func (s *Service) ownedItem(ctx context.Context, ownerKey, itemID string) (domain.Cart, domain.CartItem, error) {
	if ownerKey == "" {
		return domain.Cart{}, domain.CartItem{}, domain.ErrOwnerKeyRequired
	}

	cart, err := s.carts.GetOrCreate(ctx, ownerKey)
	if err != nil {
		return domain.Cart{}, domain.CartItem{}, fmt.Errorf("get or create cart: %w", err)
	}

	item, err := s.carts.GetItem(ctx, itemID)
	if err != nil {
		return domain.Cart{}, domain.CartItem{}, err
	}
	// Чужие позиции не видны владельцу даже по прямому ID.
	if item.CartID != cart.ID {
		return domain.Cart{}, domain.CartItem{}, domain.ErrCartItemNotFound
	}
	return cart, item, nil
}
