package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnonline/commerce/internal/domain"
)

type cartRepository struct {
	db querier
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) GetOrCreate(ctx context.Context, ownerKey string) (domain.Cart, error) {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return domain.Cart{}, domain.ErrOwnerKeyRequired
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	id := uuid.NewString()

	// Ленивое создание: гонку двух первых обращений решает уникальный
	// индекс по owner_key, проигравший просто читает существующую корзину.
	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO carts (id, owner_key, created_at, updated_at)
		VALUES ($1,$2,$3,$3)
		ON CONFLICT (owner_key) DO UPDATE SET updated_at = carts.updated_at
		RETURNING id, owner_key, created_at, updated_at
	`, id, ownerKey, now).Scan(&cart.ID, &cart.OwnerKey, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get or create cart: %w", err)
	}

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	return cart, nil
}

func (r *cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_key, created_at, updated_at
		FROM carts
		WHERE id = $1
	`, id).Scan(&cart.ID, &cart.OwnerKey, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	return cart, nil
}

func (r *cartRepository) AddItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if errs := item.Validate(); len(errs) > 0 {
		return domain.CartItem{}, errs[0]
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	// Конкурентные добавления одной комбинации не создают вторую строку:
	// частичный уникальный индекс превращает гонку в инкремент количества.
	var query string
	if item.IsProduct() {
		query = `
			INSERT INTO cart_items (id, cart_id, product_id, variant_id, course_id, qty, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (cart_id, product_id, variant_id) WHERE product_id <> ''
			DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty
			RETURNING id, cart_id, product_id, variant_id, course_id, qty, created_at
		`
	} else {
		query = `
			INSERT INTO cart_items (id, cart_id, product_id, variant_id, course_id, qty, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (cart_id, course_id) WHERE course_id <> ''
			DO UPDATE SET qty = cart_items.qty
			RETURNING id, cart_id, product_id, variant_id, course_id, qty, created_at
		`
	}

	var stored domain.CartItem
	err := r.db.QueryRowContext(ctx, query,
		item.ID, item.CartID, item.ProductID, item.VariantID, item.CourseID, item.Qty, item.CreatedAt,
	).Scan(&stored.ID, &stored.CartID, &stored.ProductID, &stored.VariantID, &stored.CourseID, &stored.Qty, &stored.CreatedAt)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return stored, nil
}

func (r *cartRepository) SetQty(ctx context.Context, itemID string, qty int32) error {
	if qty < 0 {
		return domain.ErrQtyInvalid
	}
	if qty == 0 {
		return r.RemoveItem(ctx, itemID)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET qty = $1 WHERE id = $2
	`, qty, itemID)
	if err != nil {
		return fmt.Errorf("update cart item qty: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cart item rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, itemID string) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cart item rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) GetItem(ctx context.Context, itemID string) (domain.CartItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var item domain.CartItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, cart_id, product_id, variant_id, course_id, qty, created_at
		FROM cart_items
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.CartID, &item.ProductID, &item.VariantID, &item.CourseID, &item.Qty, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("select cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) Clear(ctx context.Context, cartID string) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *cartRepository) loadItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cart_id, product_id, variant_id, course_id, qty, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at ASC, id ASC
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.VariantID, &item.CourseID, &item.Qty, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
