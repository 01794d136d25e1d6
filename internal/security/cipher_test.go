package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(1))
	require.NoError(t, err)

	inputs := []string{
		"",
		"hunter2",
		"v1.looks-like-ciphertext",
		"user:pass:with:delimiters|and|pipes.dots",
		"ünïcødé 🔐",
		strings.Repeat("x", 4096),
	}
	for _, in := range inputs {
		sealed, err := c.Encrypt(in)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sealed, "v1."))
		if in != "" {
			assert.NotContains(t, sealed, in)
		}

		out, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCipherNonceIsRandom(t *testing.T) {
	c, err := NewCipher(testKey(2))
	require.NoError(t, err)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipherRejectsWrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(3))
	require.NoError(t, err)
	c2, err := NewCipher(testKey(4))
	require.NoError(t, err)

	sealed, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	require.ErrorIs(t, err, ErrDecryption)
}

func TestCipherRejectsTampering(t *testing.T) {
	c, err := NewCipher(testKey(5))
	require.NoError(t, err)

	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	i := len("v1.") + 10
	flipped := byte('A')
	if sealed[i] == 'A' {
		flipped = 'B'
	}
	tampered := sealed[:i] + string(flipped) + sealed[i+1:]

	cases := []string{tampered, "plaintext", "v1.", "v1.!!!", "v1.AAAA"}
	for _, in := range cases {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, ErrDecryption, "input %q", in)
	}
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher(nil)
	require.Error(t, err)
	_, err = NewCipher(make([]byte, 16))
	require.Error(t, err)
}

func TestEncryptOptional(t *testing.T) {
	c, err := NewCipher(testKey(6))
	require.NoError(t, err)

	out, err := c.EncryptOptional(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	key := "api-key"
	out, err = c.EncryptOptional(&key)
	require.NoError(t, err)
	require.NotNil(t, out)
	plain, err := c.Decrypt(*out)
	require.NoError(t, err)
	assert.Equal(t, key, plain)
}
