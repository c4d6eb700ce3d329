package webhook

import (
	"context"
	"strings"

	"github.com/learnonline/commerce/internal/domain"
)

// PlanResolver — одна ступень цепочки определения тарифного плана по
// событию подписки. Ступени пробуются по порядку до первого успеха.
type PlanResolver interface {
	Resolve(ctx context.Context, data *domain.SubscriptionEventData) (domain.Plan, bool, error)
}

// MetadataResolver берёт явный идентификатор плана из метаданных события.
type MetadataResolver struct {
	plans domain.PlanRepository
}

// NewMetadataResolver создаёт резолвер по метаданным.
func NewMetadataResolver(plans domain.PlanRepository) *MetadataResolver {
	return &MetadataResolver{plans: plans}
}

func (r *MetadataResolver) Resolve(ctx context.Context, data *domain.SubscriptionEventData) (domain.Plan, bool, error) {
	if data.PlanID == "" {
		return domain.Plan{}, false, nil
	}
	plan, err := r.plans.Get(ctx, data.PlanID)
	if err != nil {
		// Несуществующий план в метаданных пропускает ход следующей ступени.
		return domain.Plan{}, false, nil
	}
	return plan, true, nil
}

// PriceIDResolver ищет точное совпадение внешнего price id с ценами планов.
type PriceIDResolver struct {
	plans domain.PlanRepository
}

// NewPriceIDResolver создаёт резолвер по идентификатору цены.
func NewPriceIDResolver(plans domain.PlanRepository) *PriceIDResolver {
	return &PriceIDResolver{plans: plans}
}

func (r *PriceIDResolver) Resolve(ctx context.Context, data *domain.SubscriptionEventData) (domain.Plan, bool, error) {
	if data.PriceID == "" {
		return domain.Plan{}, false, nil
	}
	plans, err := r.plans.All(ctx)
	if err != nil {
		return domain.Plan{}, false, err
	}
	for _, plan := range plans {
		if plan.MatchesPriceID(data.PriceID) {
			return plan, true, nil
		}
	}
	return domain.Plan{}, false, nil
}

// ProductNameResolver нестрого сопоставляет отображаемое имя продукта со
// slug планов. Последняя ступень: срабатывает, только если slug плана
// встречается в имени как подстрока.
type ProductNameResolver struct {
	plans domain.PlanRepository
}

// NewProductNameResolver создаёт резолвер по имени продукта.
func NewProductNameResolver(plans domain.PlanRepository) *ProductNameResolver {
	return &ProductNameResolver{plans: plans}
}

func (r *ProductNameResolver) Resolve(ctx context.Context, data *domain.SubscriptionEventData) (domain.Plan, bool, error) {
	name := strings.ToLower(strings.TrimSpace(data.ProductName))
	if name == "" {
		return domain.Plan{}, false, nil
	}
	plans, err := r.plans.All(ctx)
	if err != nil {
		return domain.Plan{}, false, err
	}
	for _, plan := range plans {
		if plan.Slug != "" && strings.Contains(name, strings.ToLower(plan.Slug)) {
			return plan, true, nil
		}
	}
	return domain.Plan{}, false, nil
}

// ResolverChain пробует резолверы по порядку. Если ни один не справился,
// возвращается ErrPlanUnresolved.
type ResolverChain struct {
	resolvers []PlanResolver
}

// NewResolverChain собирает стандартную цепочку: метаданные → price id →
// имя продукта.
func NewResolverChain(plans domain.PlanRepository) *ResolverChain {
	return &ResolverChain{resolvers: []PlanResolver{
		NewMetadataResolver(plans),
		NewPriceIDResolver(plans),
		NewProductNameResolver(plans),
	}}
}

func (c *ResolverChain) Resolve(ctx context.Context, data *domain.SubscriptionEventData) (domain.Plan, error) {
	for _, resolver := range c.resolvers {
		plan, ok, err := resolver.Resolve(ctx, data)
		if err != nil {
			return domain.Plan{}, err
		}
		if ok {
			return plan, nil
		}
	}
	return domain.Plan{}, domain.ErrPlanUnresolved
}
