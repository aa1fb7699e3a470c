package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sheguard/sheguard/server/auth/key"
	"github.com/stretchr/testify/assert"
)

func testKeyPair(t *testing.T) *key.KeyPair {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.Nil(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	keyPair, err := key.NewKeyPairFromRSAPrivateKeyPem(string(pemBytes))
	assert.Nil(t, err)

	return keyPair
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("very-secure")
	assert.Nil(t, err)
	assert.NotEqual(t, "very-secure", hash)

	assert.True(t, CheckPasswordHash("very-secure", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
	assert.False(t, CheckPasswordHash("very-secure", "not-a-hash"))
}

func TestJWTRoundTrip(t *testing.T) {
	keyPair := testKeyPair(t)

	token, err := EncodeJWT(SheGuardTokenClaims{
		FirstName: "jessica",
		LastName:  "pearson",
		StandardClaims: jwt.StandardClaims{
			Subject:   "1",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	}, keyPair)
	assert.Nil(t, err)

	claims, err := DecodeJWT(token, keyPair)
	assert.Nil(t, err)
	assert.Equal(t, "jessica", claims.FirstName)
	assert.Equal(t, "1", claims.Subject)
}

func TestDecodeJWTRejectsBadTokens(t *testing.T) {
	keyPair := testKeyPair(t)

	_, err := DecodeJWT("not.a.token", keyPair)
	assert.NotNil(t, err)

	expired, err := EncodeJWT(SheGuardTokenClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "1",
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		},
	}, keyPair)
	assert.Nil(t, err)

	_, err = DecodeJWT(expired, keyPair)
	assert.NotNil(t, err)

	// A token signed by a different key must not verify
	otherKeyPair := testKeyPair(t)
	token, err := EncodeJWT(SheGuardTokenClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "1",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	}, otherKeyPair)
	assert.Nil(t, err)

	_, err = DecodeJWT(token, keyPair)
	assert.NotNil(t, err)
}
