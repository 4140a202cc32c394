// Package credential хеширует и проверяет пароли комнат.
//
// Поддерживаются две схемы:
//   - sha256: hex(SHA-256(password + salt)) с одной общей солью на инсталляцию;
//   - argon2id: случайная соль на каждую запись, результат в PHC-формате
//     $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
//
// Verify определяет схему по сохраненной строке, поэтому старые sha256-дайджесты
// продолжают проверяться после переключения на argon2id.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

type Scheme string

const (
	SchemeArgon2id Scheme = "argon2id"
	SchemeSHA256   Scheme = "sha256"
)

// DefaultSalt - общая соль схемы sha256
const DefaultSalt = "chat-rooms-static-salt-v1"

const PINLength = 4

// Пределы параметров, принимаемых из сохраненной строки argon2id
const (
	maxArgon2Memory     = 256 * 1024 // KiB
	maxArgon2Iterations = 64
	maxArgon2KeyLength  = 128
)

var ErrUnknownScheme = errors.New("unknown password scheme")

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type hasher struct {
	scheme Scheme
	salt   string
	params Argon2Params
}

func New(scheme Scheme, salt string, params Argon2Params) (Hasher, error) {
	switch scheme {
	case SchemeArgon2id, SchemeSHA256:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	if salt == "" {
		salt = DefaultSalt
	}
	return &hasher{scheme: scheme, salt: salt, params: params}, nil
}

// Digest - детерминированный дайджест схемы sha256
func Digest(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// ValidPIN - ровно 4 ASCII-цифры
func ValidPIN(password string) bool {
	if len(password) != PINLength {
		return false
	}
	for i := 0; i < len(password); i++ {
		if password[i] < '0' || password[i] > '9' {
			return false
		}
	}
	return true
}

func (h *hasher) Hash(password string) (string, error) {
	if h.scheme == SchemeSHA256 {
		return Digest(password, h.salt), nil
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *hasher) Verify(password, encoded string) bool {
	if strings.HasPrefix(encoded, "$argon2id$") {
		return verifyArgon2id(password, encoded)
	}
	expected := Digest(password, h.salt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(encoded)) == 1
}

func verifyArgon2id(password, encoded string) bool {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	if iterations < 1 || iterations > maxArgon2Iterations || parallelism < 1 || memory > maxArgon2Memory {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgon2KeyLength {
		return false
	}

	actual := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(actual, key) == 1
}
