package password

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("s3cretpass")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$")

	ok, err := Verify("s3cretpass", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("wrongpass1", hash)
	require.NoError(t, err)
	require.False(t, ok)

	require.False(t, NeedsRehash(hash))
}

func TestHashUsesRandomSalt(t *testing.T) {
	first, err := Hash("s3cretpass")
	require.NoError(t, err)
	second, err := Hash("s3cretpass")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyLegacyPBKDF2(t *testing.T) {
	salt := "abcdefgh12345678"
	digest := pbkdf2.Key([]byte("legacy123"), []byte(salt), 1000, 32, sha256.New)
	hash := fmt.Sprintf("pbkdf2_sha256$1000$%s$%s", salt, base64.StdEncoding.EncodeToString(digest))

	ok, err := Verify("legacy123", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("legacy124", hash)
	require.NoError(t, err)
	require.False(t, ok)

	require.True(t, NeedsRehash(hash))
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("bcrypted1"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := Verify("bcrypted1", string(raw))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("bcrypted1", "bcrypt$"+string(raw))
	require.NoError(t, err)
	require.True(t, ok)

	sum := sha256.Sum256([]byte("prehashed1"))
	pre, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(sum[:])), bcrypt.MinCost)
	require.NoError(t, err)
	ok, err = Verify("prehashed1", "bcrypt_sha256$"+string(pre))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify("nope12345", string(raw))
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, NeedsRehash(string(raw)))
}

func TestVerifyRejectsUnknownEncoding(t *testing.T) {
	for _, hash := range []string{"", "md5$abc", "$argon2id$v=19$bad", "pbkdf2_sha256$x$salt$hash"} {
		_, err := Verify("whatever1", hash)
		require.Error(t, err, hash)
	}
}

func TestValidatePolicy(t *testing.T) {
	require.NoError(t, ValidatePolicy("abcdefg1"))
	require.NoError(t, ValidatePolicy("Ünïcode9pass"))

	for _, pw := range []string{"", "abc1", "abcdefgh", "12345678"} {
		err := ValidatePolicy(pw)
		require.ErrorIs(t, err, domain.ErrInvalidInput, pw)
	}
}
