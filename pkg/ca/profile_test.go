package ca

import (
	"crypto/x509"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestEnsureConfigIdempotent(t *testing.T) {

	certificateAuthority, fs := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))

	files := []string{
		"ca/openssl.cnf",
		"ca/v3_ca.cnf",
		"ca/v3_req.cnf",
		"ca/example.com.cnf",
		"ca/example.com.subj",
	}

	firstRun := make(map[string][]byte, len(files))
	for _, file := range files {
		contents, err := afero.ReadFile(fs, file)
		assert.Nil(t, err)
		firstRun[file] = contents
	}

	// A second run must leave every file byte-identical
	assert.Nil(t, certificateAuthority.EnsureConfig(domain))
	for _, file := range files {
		contents, err := afero.ReadFile(fs, file)
		assert.Nil(t, err)
		assert.Equal(t, firstRun[file], contents, file)
	}
}

func TestEnsureConfigPreservesEdits(t *testing.T) {

	certificateAuthority, fs := defaultCA(t)
	domain := "example.com"

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))

	edited := []byte("/C=US/ST=Oregon/L=Portland/O=Acme/OU=Ops/CN=example.com")
	assert.Nil(t, afero.WriteFile(fs, "ca/example.com.subj", edited, 0644))

	assert.Nil(t, certificateAuthority.EnsureConfig(domain))

	contents, err := afero.ReadFile(fs, "ca/example.com.subj")
	assert.Nil(t, err)
	assert.Equal(t, edited, contents)
}

func TestParseProfileLastSectionWins(t *testing.T) {

	merged := `
[ v3_req ]
extendedKeyUsage = serverAuth

[ alt_names ]
DNS.1 = first.example.com

[ v3_req ]
extendedKeyUsage = clientAuth
`
	sections := parseProfile([]byte(merged))

	assert.Equal(t, "clientAuth", sections["v3_req"]["extendedKeyUsage"])
	assert.Equal(t, "first.example.com", sections["alt_names"]["DNS.1"])
}

func TestResolveRequestExtensions(t *testing.T) {

	sections := parseProfile([]byte(baseProfileTemplate + domainSANBlock("example.com")))

	extensions, err := resolveRequestExtensions(sections)
	assert.Nil(t, err)

	assert.False(t, extensions.isCA)
	assert.Equal(t, x509.KeyUsageContentCommitment|x509.KeyUsageDigitalSignature|
		x509.KeyUsageKeyEncipherment, extensions.keyUsage)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, extensions.extKeyUsage)
	assert.Equal(t, []string{"example.com"}, extensions.dnsNames)
}

func TestResolveRequestExtensionsMissingSection(t *testing.T) {

	_, err := resolveRequestExtensions(parseProfile([]byte("[ v3_ca ]\n")))
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestDNSEntriesOrdered(t *testing.T) {

	names := dnsEntries(map[string]string{
		"DNS.10": "tenth.example.com",
		"DNS.2":  "second.example.com",
		"DNS.1":  "first.example.com",
		"IP.1":   "127.0.0.1",
	})
	assert.Equal(t, []string{
		"first.example.com",
		"second.example.com",
		"tenth.example.com"}, names)
}

func TestParseSubjectLine(t *testing.T) {

	subject, err := parseSubjectLine(" /C=CN/ST=State/L=City/O=Organization/OU=Unit/CN=example.com\n")
	assert.Nil(t, err)

	assert.Equal(t, "example.com", subject.CommonName)
	assert.Equal(t, []string{"CN"}, subject.Country)
	assert.Equal(t, []string{"State"}, subject.Province)
	assert.Equal(t, []string{"City"}, subject.Locality)
	assert.Equal(t, []string{"Organization"}, subject.Organization)
	assert.Equal(t, []string{"Unit"}, subject.OrganizationalUnit)
}

func TestParseSubjectLineInvalid(t *testing.T) {

	_, err := parseSubjectLine("CN=example.com")
	assert.ErrorIs(t, err, ErrInvalidSubjectLine)

	_, err = parseSubjectLine("/CN")
	assert.ErrorIs(t, err, ErrInvalidSubjectLine)
}
