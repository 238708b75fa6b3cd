package e2e

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func encodePKCS1(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(pub),
	}))
}
