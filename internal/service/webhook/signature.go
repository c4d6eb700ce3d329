package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/learnonline/commerce/internal/domain"
)

// SecretProvider возвращает актуальный секрет подписи событий.
type SecretProvider func() (string, error)

// Verifier проверяет подлинность событий процессора: HMAC-SHA256 от сырого
// тела запроса, hex-кодировка, сравнение за константное время.
type Verifier struct {
	secret SecretProvider
}

// NewVerifier создаёт проверку подписи с динамическим секретом, чтобы
// Reconfigure учётных данных действовал без перезапуска.
func NewVerifier(secret SecretProvider) *Verifier {
	return &Verifier{secret: secret}
}

// Verify сверяет подпись с ожидаемой. Любое расхождение, включая
// недоступный секрет, трактуется как ErrSignatureInvalid.
func (v *Verifier) Verify(body []byte, signature string) error {
	secret, err := v.secret()
	if err != nil || secret == "" {
		return domain.ErrSignatureInvalid
	}

	signature = strings.TrimSpace(strings.TrimPrefix(signature, "sha256="))
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) == 0 {
		return domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// Sign подписывает тело события; используется в тестах и локальной отладке.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
