package ca

import (
	"crypto/x509"
	"errors"
)

const (
	FILE_CA_KEY       = "ca.key"
	FILE_CA_CERT      = "ca.crt"
	FILE_CA_SERIAL    = "ca.srl"
	FILE_BASE_PROFILE = "openssl.cnf"
	FILE_CA_PROFILE   = "v3_ca.cnf"
	FILE_LEAF_PROFILE = "v3_req.cnf"

	FSEXT_PRIVATE_PEM = ".key"
	FSEXT_PEM         = ".crt"
	FSEXT_CSR         = ".csr"
	FSEXT_PROFILE     = ".cnf"
	FSEXT_SUBJECT     = ".subj"

	MIN_RSA_KEY_SIZE = 2048
)

var (
	ErrInvalidConfig        = errors.New("certificate-authority: invalid configuration")
	ErrMissingPrerequisite  = errors.New("certificate-authority: missing prerequisite")
	ErrOperationFailed      = errors.New("certificate-authority: operation failed")
	ErrInvalidEncodingPEM   = errors.New("certificate-authority: invalid PEM encoding")
	ErrInvalidPrivateKey    = errors.New("certificate-authority: invalid private key")
	ErrInvalidPrivateKeyRSA = errors.New("certificate-authority: invalid RSA private key")
	ErrInvalidSubjectLine   = errors.New("certificate-authority: invalid subject line")
	ErrInvalidProfile       = errors.New("certificate-authority: invalid configuration profile")
	ErrInvalidSerialState   = errors.New("certificate-authority: corrupt serial number state")
)

type Config struct {
	Home          string `yaml:"home" json:"home" mapstructure:"home"`
	KeySize       int    `yaml:"key-size" json:"key_size" mapstructure:"key-size"`
	CAValidYears  int    `yaml:"ca-valid-years" json:"ca_valid_years" mapstructure:"ca-valid-years"`
	LeafValidDays int    `yaml:"issued-valid-days" json:"issued_valid_days" mapstructure:"issued-valid-days"`
}

func DefaultConfig() *Config {
	return &Config{
		Home:          "ca",
		KeySize:       2048,
		CAValidYears:  100,
		LeafValidDays: 365,
	}
}

// The key and certificate issued for a single domain. Key material is
// persisted to the certificate store; the parsed certificate is
// returned for callers that want to inspect or verify it.
type LeafIdentity struct {
	Domain      string
	KeyFile     string
	CertFile    string
	Certificate *x509.Certificate
}
