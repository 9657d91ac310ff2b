package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	h := NewArgon2Hasher(fastArgon2)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"))
	assert.True(t, h.Verify(hash, "correct-horse"))
	assert.False(t, h.Verify(hash, "wrong-horse"))
}

func TestArgon2Hasher_SaltsEveryHash(t *testing.T) {
	h := NewArgon2Hasher(fastArgon2)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestArgon2Hasher_VerifiesLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)

	h := NewArgon2Hasher(fastArgon2)
	assert.True(t, h.Verify(string(legacy), "old-password"))
	assert.False(t, h.Verify(string(legacy), "new-password"))
}

func TestArgon2Hasher_RejectsMalformedHashes(t *testing.T) {
	h := NewArgon2Hasher(fastArgon2)

	for _, hash := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=64,t=1,p=1$only-five-parts",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA",
	} {
		assert.False(t, h.Verify(hash, "anything"), hash)
	}
}
