package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const minRSABits = 2048

// GenerateKeyPEM creates an RSA private key and returns it PKCS#8 PEM encoded.
func GenerateKeyPEM(bits int) ([]byte, error) {
	if bits < minRSABits {
		return nil, fmt.Errorf("rsa key must be at least %d bits", minRSABits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyPEM returns the PKIX PEM encoding of the public half of privatePEM.
func PublicKeyPEM(privatePEM []byte) ([]byte, error) {
	key, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, errors.New("invalid rsa private key")
	}
	if key.N.BitLen() < minRSABits {
		return nil, fmt.Errorf("rsa key must be at least %d bits", minRSABits)
	}
	return key, nil
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, errors.New("invalid rsa public key")
	}
	if key.N.BitLen() < minRSABits {
		return nil, fmt.Errorf("rsa key must be at least %d bits", minRSABits)
	}
	return key, nil
}
