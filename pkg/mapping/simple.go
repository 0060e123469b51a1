package mapping

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	"github.com/interstate-love-song/broker/pkg/logger"
)

// Password hashing parameters for the simple mapper. The fixed salt is a
// known weakness kept for compatibility with existing configs; the hash
// format is PBKDF2-HMAC-SHA256, hex encoded.
const (
	hashIterations = 100000
	hashKeyLength  = 32
	hashSalt       = "IGNORED"
)

// HashPassword hashes a password for storage in the simple mapper config.
func HashPassword(password string) string {
	key := pbkdf2.Key([]byte(password), []byte(hashSalt), hashIterations, hashKeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// SimpleMapper accepts a single set of credentials and returns a static
// resource list.
type SimpleMapper struct {
	username     string
	passwordHash string
	resources    ResourceList
	domains      []string
}

// NewSimpleMapper creates a SimpleMapper. passwordHash is the output of
// HashPassword; resources keep their given order and are assigned the IDs
// "0", "1", ... by position.
func NewSimpleMapper(username, passwordHash string, resources []Resource, domains []string) *SimpleMapper {
	return &SimpleMapper{
		username:     username,
		passwordHash: passwordHash,
		resources:    NewResourceList(resources),
		domains:      domains,
	}
}

// Map checks the credentials against the configured pair and returns the
// static resource list on success.
func (m *SimpleMapper) Map(_ context.Context, creds Credentials, _ string) (MapperStatus, ResourceList) {
	hash := HashPassword(creds.Password)
	usernameOK := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(m.username)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(hash), []byte(m.passwordHash)) == 1

	if !usernameOK || !passwordOK {
		logger.Infow("authentication failed", "mapper", m.Name())
		return StatusAuthenticationFailed, nil
	}

	if len(m.resources) == 0 {
		return StatusNoMachine, nil
	}

	list := make(ResourceList, len(m.resources))
	copy(list, m.resources)
	return StatusSuccess, list
}

// Domains returns the configured authentication domains.
func (m *SimpleMapper) Domains() []string {
	return m.domains
}

// Name identifies the mapper in logs.
func (*SimpleMapper) Name() string {
	return "SimpleMapper"
}
