package ca

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestIssueLeaf(t *testing.T) {

	certificateAuthority, fs := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))
	_, _, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)

	identity, err := certificateAuthority.IssueLeaf(domain)
	assert.Nil(t, err)

	certificate := identity.Certificate
	assert.Equal(t, domain, certificate.Subject.CommonName)
	assert.Equal(t, []string{domain}, certificate.DNSNames)
	assert.False(t, certificate.IsCA)
	assert.Contains(t, certificate.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	assert.Equal(t, x509.KeyUsageContentCommitment|x509.KeyUsageDigitalSignature|
		x509.KeyUsageKeyEncipherment, certificate.KeyUsage)

	// Chain of one: the leaf verifies against the CA certificate
	assert.Nil(t, certificateAuthority.Verify(certificate))

	// The persisted key is normalized to PKCS#8
	keyPEM, err := afero.ReadFile(fs, identity.KeyFile)
	assert.Nil(t, err)
	block, _ := pem.Decode(keyPEM)
	assert.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)

	privateKey, err := ParsePrivKeyPEM(keyPEM)
	assert.Nil(t, err)
	assert.Equal(t, &privateKey.PublicKey, certificate.PublicKey)

	// The signing request is discarded after issuance
	exists, err := afero.Exists(fs, "ca/example.com.csr")
	assert.Nil(t, err)
	assert.False(t, exists)

	// The merged profile scratch file is released
	empty, err := afero.IsEmpty(fs, "tmp")
	assert.Nil(t, err)
	assert.True(t, empty)
}

func TestIssueLeafMissingCA(t *testing.T) {

	certificateAuthority, fs := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))

	_, err := certificateAuthority.IssueLeaf(domain)
	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	assert.Contains(t, err.Error(), "ca/ca.key")
	assert.Contains(t, err.Error(), "ca/ca.crt")

	// The pre-flight check failed before any key material was written
	exists, err := afero.Exists(fs, "ca/example.com.key")
	assert.Nil(t, err)
	assert.False(t, exists)
}

func TestIssueLeafProfileOverride(t *testing.T) {

	certificateAuthority, fs := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))
	_, _, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)

	// The domain profile is merged last, so its v3_req and alt_names
	// sections override the shared templates
	override := `
[ v3_req ]
basicConstraints       = CA:FALSE
keyUsage               = digitalSignature, keyEncipherment
extendedKeyUsage       = serverAuth, clientAuth
subjectAltName         = @alt_names

[ alt_names ]
DNS.1 = example.com
DNS.2 = www.example.com
`
	assert.Nil(t, afero.WriteFile(fs, "ca/example.com.cnf", []byte(override), 0644))

	identity, err := certificateAuthority.IssueLeaf(domain)
	assert.Nil(t, err)

	certificate := identity.Certificate
	assert.Equal(t, []string{"example.com", "www.example.com"}, certificate.DNSNames)
	assert.Contains(t, certificate.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment,
		certificate.KeyUsage)
}

func TestLeafKeyRotation(t *testing.T) {

	certificateAuthority, _ := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))
	_, _, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)

	first, err := certificateAuthority.IssueLeaf(domain)
	assert.Nil(t, err)

	// Each issuance generates a fresh key pair
	second, err := certificateAuthority.IssueLeaf(domain)
	assert.Nil(t, err)
	assert.NotEqual(t, first.Certificate.PublicKey, second.Certificate.PublicKey)
}
