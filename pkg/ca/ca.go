package ca

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/proxyforge/certgen/pkg/logging"
	"github.com/proxyforge/certgen/pkg/scratch"
	"github.com/proxyforge/certgen/pkg/util"
)

type CAParams struct {
	Logger  *logging.Logger
	Config  *Config
	Fs      afero.Fs
	Scratch *scratch.Set
	Random  io.Reader
}

// CA provisions a local root Certificate Authority and issues server
// certificates signed by it, for TLS interception by the proxy. All
// key and certificate material is persisted under the configured home
// directory.
type CA struct {
	logger  *logging.Logger
	config  *Config
	fs      afero.Fs
	scratch *scratch.Set
	random  io.Reader
	caDir   string
}

func NewCA(params CAParams) (*CA, error) {
	if params.Config == nil {
		params.Config = DefaultConfig()
	}
	if params.Config.KeySize < MIN_RSA_KEY_SIZE {
		return nil, fmt.Errorf("%w: key size %d below %d bit minimum",
			ErrInvalidConfig, params.Config.KeySize, MIN_RSA_KEY_SIZE)
	}
	if params.Fs == nil {
		params.Fs = afero.NewOsFs()
	}
	if params.Random == nil {
		params.Random = rand.Reader
	}
	return &CA{
		logger:  params.Logger,
		config:  params.Config,
		fs:      params.Fs,
		scratch: params.Scratch,
		random:  params.Random,
		caDir:   params.Config.Home}, nil
}

// Subject for the self-signed root certificate. Built directly rather
// than from the on-disk templates so a modified template can't break
// CA rotation.
func caSubject() pkix.Name {
	return pkix.Name{
		Country:            []string{"CN"},
		Province:           []string{"State"},
		Locality:           []string{"City"},
		Organization:       []string{"CertGen CA"},
		OrganizationalUnit: []string{"CertGen"},
		CommonName:         "CertGen Root CA",
	}
}

// Generates a new CA key pair and self-signed root certificate,
// unconditionally overwriting any existing CA material. Re-running
// rotates the root: leaf certificates signed by the previous CA no
// longer verify against the new one.
func (ca *CA) IssueCA() (*rsa.PrivateKey, *x509.Certificate, error) {

	ca.logger.Info("Generating CA certificate")

	if err := ca.fs.MkdirAll(ca.caDir, os.ModePerm); err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}

	var privateKey *rsa.PrivateKey
	if err := ca.run("generate CA private key", func() error {
		var err error
		privateKey, err = rsa.GenerateKey(ca.random, ca.config.KeySize)
		return err
	}); err != nil {
		return nil, nil, err
	}

	serialNumber, err := util.X509SerialNumber()
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}

	subjectKeyID, err := createSubjectKeyIdentifier(&privateKey.PublicKey)
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}

	subject := caSubject()
	template := &x509.Certificate{
		SignatureAlgorithm:    x509.SHA256WithRSA,
		SerialNumber:          serialNumber,
		Issuer:                subject,
		Subject:               subject,
		SubjectKeyId:          subjectKeyID,
		AuthorityKeyId:        subjectKeyID,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(ca.config.CAValidYears, 0, 0),
		IsCA:                  true,
		KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign |
			x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment |
			x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment,
		BasicConstraintsValid: true}

	var derBytes []byte
	if err := ca.run("create self-signed CA certificate", func() error {
		var err error
		derBytes, err = x509.CreateCertificate(
			ca.random, template, template, &privateKey.PublicKey, privateKey)
		return err
	}); err != nil {
		return nil, nil, err
	}

	certificate, err := x509.ParseCertificate(derBytes)
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}

	keyPEM, err := EncodePrivKeyPEM(privateKey)
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}
	if err := afero.WriteFile(ca.fs, ca.path(FILE_CA_KEY), keyPEM, 0600); err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}

	certPEM, err := EncodePEM(derBytes)
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}
	if err := afero.WriteFile(ca.fs, ca.path(FILE_CA_CERT), certPEM, 0644); err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}

	ca.logger.Infof("CA certificate generated: %s", ca.path(FILE_CA_CERT))

	return privateKey, certificate, nil
}

// Loads the CA private key and signing certificate from the store
func (ca *CA) Load() (*rsa.PrivateKey, *x509.Certificate, error) {
	keyPEM, err := afero.ReadFile(ca.fs, ca.path(FILE_CA_KEY))
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}
	privateKey, err := ParsePrivKeyPEM(keyPEM)
	if err != nil {
		ca.logger.Error(err)
		return nil, nil, err
	}
	certificate, err := ca.Certificate()
	if err != nil {
		return nil, nil, err
	}
	return privateKey, certificate, nil
}

// Returns the CA signing certificate from the store
func (ca *CA) Certificate() (*x509.Certificate, error) {
	certPEM, err := afero.ReadFile(ca.fs, ca.path(FILE_CA_CERT))
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}
	return DecodePEM(certPEM)
}

// Verifies a certificate against the CA root certificate. The trust
// chain is always of length one; there are no intermediates.
func (ca *CA) Verify(certificate *x509.Certificate) error {
	caCert, err := ca.Certificate()
	if err != nil {
		return err
	}
	roots := x509.NewCertPool()
	roots.AddCert(caCert)
	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := certificate.Verify(opts); err != nil {
		return err
	}
	return nil
}

func (ca *CA) path(name string) string {
	return fmt.Sprintf("%s/%s", ca.caDir, name)
}

// RFC 5280 method 1 key identifier: SHA-1 of the DER encoded
// subject public key
func createSubjectKeyIdentifier(pub crypto.PublicKey) ([]byte, error) {
	var spki struct {
		Algorithm        pkix.AlgorithmIdentifier
		SubjectPublicKey asn1.BitString
	}
	spkiASN1, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	if _, err := asn1.Unmarshal(spkiASN1, &spki); err != nil {
		return nil, err
	}
	skid := sha1.Sum(spki.SubjectPublicKey.Bytes)
	return skid[:], nil
}
