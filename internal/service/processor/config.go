package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/domain"
)

// ClientFactory создаёт клиент процессора из учётных данных.
type ClientFactory func(creds Credentials) domain.ChargeProcessor

// Config держит текущие учётные данные процессора и собранный из них клиент.
// Клиент пересобирается только явным Reconfigure, ленивых глобальных
// инициализаций нет.
type Config struct {
	repo    domain.CredentialRepository
	sealer  *Sealer
	factory ClientFactory
	logger  *log.Entry

	mu         sync.RWMutex
	creds      Credentials
	client     domain.ChargeProcessor
	configured bool
}

// NewConfig создаёт держатель конфигурации процессора.
func NewConfig(repo domain.CredentialRepository, sealer *Sealer, factory ClientFactory, logger *log.Entry) *Config {
	if logger == nil {
		logger = log.WithField("component", "processor-config")
	}
	return &Config{
		repo:    repo,
		sealer:  sealer,
		factory: factory,
		logger:  logger,
	}
}

// Load читает запечатанные учётные данные из хранилища и собирает клиент.
// Отсутствие сохранённых данных не ошибка: сервис стартует неконфигурированным.
func (c *Config) Load(ctx context.Context) error {
	sealed, err := c.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialsNotFound) {
			c.logger.Info("processor credentials not configured yet")
			return nil
		}
		return fmt.Errorf("load sealed credentials: %w", err)
	}

	creds, err := c.sealer.Open(sealed)
	if err != nil {
		return fmt.Errorf("unseal credentials: %w", err)
	}

	c.mu.Lock()
	c.creds = creds
	c.client = c.factory(creds)
	c.configured = true
	c.mu.Unlock()

	c.logger.Info("processor credentials loaded")
	return nil
}

// Reconfigure валидирует, запечатывает и сохраняет новые учётные данные,
// затем атомарно подменяет клиент.
func (c *Config) Reconfigure(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCredentialsInvalid, err)
	}

	sealed, err := c.sealer.Seal(creds)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	if err := c.repo.Save(ctx, sealed); err != nil {
		return fmt.Errorf("save sealed credentials: %w", err)
	}

	c.mu.Lock()
	c.creds = creds
	c.client = c.factory(creds)
	c.configured = true
	c.mu.Unlock()

	c.logger.Info("processor credentials reconfigured")
	return nil
}

// Masked возвращает маскированное представление текущих учётных данных.
func (c *Config) Masked() (MaskedCredentials, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.configured {
		return MaskedCredentials{}, domain.ErrCredentialsNotFound
	}
	return c.creds.Masked(), nil
}

// WebhookSecret возвращает текущий секрет подписи событий.
func (c *Config) WebhookSecret() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.configured {
		return "", domain.ErrCredentialsNotFound
	}
	return c.creds.WebhookSecret, nil
}

// Client возвращает текущий клиент процессора.
func (c *Config) Client() (domain.ChargeProcessor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.configured {
		return nil, domain.ErrCredentialsNotFound
	}
	return c.client, nil
}

var _ domain.ChargeProcessor = (*configuredProcessor)(nil)

// configuredProcessor адаптирует Config к ChargeProcessor: каждый вызов
// берёт актуальный клиент, поэтому Reconfigure действует немедленно.
type configuredProcessor struct {
	config *Config
}

// AsChargeProcessor возвращает ChargeProcessor поверх конфигурации.
func (c *Config) AsChargeProcessor() domain.ChargeProcessor {
	return &configuredProcessor{config: c}
}

func (p *configuredProcessor) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	client, err := p.config.Client()
	if err != nil {
		return domain.Intent{}, err
	}
	return client.CreateIntent(ctx, req)
}

func (p *configuredProcessor) CreateRefund(ctx context.Context, req domain.ProcessorRefundRequest) (string, error) {
	client, err := p.config.Client()
	if err != nil {
		return "", err
	}
	return client.CreateRefund(ctx, req)
}

func (p *configuredProcessor) CancelIntent(ctx context.Context, intentID string) error {
	client, err := p.config.Client()
	if err != nil {
		return err
	}
	return client.CancelIntent(ctx, intentID)
}
