package ca

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/proxyforge/certgen/pkg/logging"
	"github.com/proxyforge/certgen/pkg/scratch"
)

func defaultCA(t *testing.T) (*CA, afero.Fs) {
	fs := afero.NewMemMapFs()
	logger := logging.DefaultLogger()
	scratchSet, err := scratch.New(logger, fs, "tmp")
	assert.Nil(t, err)
	certificateAuthority, err := NewCA(CAParams{
		Logger:  logger,
		Config:  DefaultConfig(),
		Fs:      fs,
		Scratch: scratchSet,
	})
	assert.Nil(t, err)
	return certificateAuthority, fs
}

func TestIssueCASelfSigned(t *testing.T) {

	certificateAuthority, fs := defaultCA(t)

	privateKey, certificate, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)
	assert.NotNil(t, privateKey)
	assert.NotNil(t, certificate)

	// Self-signed: subject == issuer and the signature verifies
	// against the certificate's own public key
	assert.Equal(t, certificate.Subject.String(), certificate.Issuer.String())
	assert.Nil(t, certificate.CheckSignatureFrom(certificate))

	assert.True(t, certificate.IsCA)
	assert.True(t, certificate.BasicConstraintsValid)

	// Effectively permanent validity
	assert.True(t, certificate.NotAfter.After(time.Now().AddDate(50, 0, 0)))

	exists, err := afero.Exists(fs, "ca/ca.key")
	assert.Nil(t, err)
	assert.True(t, exists)

	exists, err = afero.Exists(fs, "ca/ca.crt")
	assert.Nil(t, err)
	assert.True(t, exists)
}

func TestLoadAfterIssue(t *testing.T) {

	certificateAuthority, _ := defaultCA(t)

	issuedKey, issuedCert, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)

	loadedKey, loadedCert, err := certificateAuthority.Load()
	assert.Nil(t, err)
	assert.Equal(t, issuedKey.N, loadedKey.N)
	assert.Equal(t, issuedCert.SerialNumber, loadedCert.SerialNumber)
}

func TestCARotation(t *testing.T) {

	certificateAuthority, _ := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))

	_, firstCert, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)

	identity, err := certificateAuthority.IssueLeaf(domain)
	assert.Nil(t, err)
	assert.Nil(t, certificateAuthority.Verify(identity.Certificate))

	// Re-running CA issuance rotates the root
	_, secondCert, err := certificateAuthority.IssueCA()
	assert.Nil(t, err)
	assert.NotEqual(t, firstCert.SerialNumber, secondCert.SerialNumber)

	// Leaves signed by the previous root no longer verify
	assert.NotNil(t, certificateAuthority.Verify(identity.Certificate))
}

func TestKeySizeBelowMinimum(t *testing.T) {

	config := DefaultConfig()
	config.KeySize = 1024

	_, err := NewCA(CAParams{
		Logger: logging.DefaultLogger(),
		Config: config,
		Fs:     afero.NewMemMapFs(),
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
