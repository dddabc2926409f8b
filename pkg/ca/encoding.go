package ca

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/youmark/pkcs8"
)

// Encodes a raw DER byte array as a PEM byte array
func EncodePEM(derCert []byte) ([]byte, error) {
	caPEM := new(bytes.Buffer)
	err := pem.Encode(caPEM, &pem.Block{
		Type:  "CERTIFICATE",
		Bytes: derCert,
	})
	if err != nil {
		return nil, err
	}
	return caPEM.Bytes(), nil
}

// Decodes PEM bytes to *x509.Certificate
func DecodePEM(bytes []byte) (*x509.Certificate, error) {
	var block *pem.Block
	if block, _ = pem.Decode(bytes); block == nil {
		return nil, ErrInvalidEncodingPEM
	}
	return x509.ParseCertificate(block.Bytes)
}

// Encodes a Certificate Signing Request to PEM form
func EncodeCSR(csr []byte) ([]byte, error) {
	csrPEM := new(bytes.Buffer)
	csrBlock := &pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csr}
	if err := pem.Encode(csrPEM, csrBlock); err != nil {
		return nil, err
	}
	return csrPEM.Bytes(), nil
}

// Decodes CSR bytes to x509.CertificateRequest
func DecodeCSR(bytes []byte) (*x509.CertificateRequest, error) {
	var block *pem.Block
	if block, _ = pem.Decode(bytes); block == nil {
		return nil, ErrInvalidEncodingPEM
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// Encodes an RSA private key to traditional PKCS#1 PEM form
func EncodePrivKeyPEM(privateKey *rsa.PrivateKey) ([]byte, error) {
	keyPEM := new(bytes.Buffer)
	err := pem.Encode(keyPEM, &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err != nil {
		return nil, err
	}
	return keyPEM.Bytes(), nil
}

// Re-encodes an RSA private key to standard PKCS#8 PEM form
func EncodePrivKeyPKCS8PEM(privateKey *rsa.PrivateKey) ([]byte, error) {
	der, err := pkcs8.MarshalPrivateKey(privateKey, nil, nil)
	if err != nil {
		return nil, err
	}
	keyPEM := new(bytes.Buffer)
	err = pem.Encode(keyPEM, &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	})
	if err != nil {
		return nil, err
	}
	return keyPEM.Bytes(), nil
}

// Parses an RSA private key in PKCS#8 or PKCS#1 PEM form
func ParsePrivKeyPEM(bytes []byte) (*rsa.PrivateKey, error) {
	var block *pem.Block
	if block, _ = pem.Decode(bytes); block == nil {
		return nil, ErrInvalidEncodingPEM
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrInvalidPrivateKeyRSA
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}
