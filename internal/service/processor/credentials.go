package processor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Credentials — учётные данные платёжного процессора в открытом виде.
// В хранилище попадают только в запечатанном (AES-GCM) виде.
type Credentials struct {
	PublishableKey string `json:"publishable_key"`
	SecretKey      string `json:"secret_key"`
	WebhookSecret  string `json:"webhook_secret"`
}

// Validate проверяет, что оба секрета заданы.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("secret key is required")
	}
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return fmt.Errorf("webhook secret is required")
	}
	return nil
}

// MaskedCredentials — представление для чтения: первые и последние четыре
// символа каждого секрета, середина заменена звёздочками.
type MaskedCredentials struct {
	PublishableKey string `json:"publishable_key"`
	SecretKey      string `json:"secret_key"`
	WebhookSecret  string `json:"webhook_secret"`
}

// Masked возвращает маскированное представление учётных данных.
// Publishable key не секретен и отдаётся как есть.
func (c Credentials) Masked() MaskedCredentials {
	return MaskedCredentials{
		PublishableKey: c.PublishableKey,
		SecretKey:      maskSecret(c.SecretKey),
		WebhookSecret:  maskSecret(c.WebhookSecret),
	}
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// Sealer шифрует и расшифровывает учётные данные ключом приложения.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создаёт Sealer из 32-байтного ключа.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealing key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal сериализует учётные данные и шифрует их; nonce дописывается в начало.
func (s *Sealer) Seal(creds Credentials) ([]byte, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open расшифровывает запечатанные учётные данные.
func (s *Sealer) Open(sealed []byte) (Credentials, error) {
	if len(sealed) < s.aead.NonceSize() {
		return Credentials{}, fmt.Errorf("sealed payload too short")
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("open sealed credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}
