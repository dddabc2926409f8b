package ca

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/proxyforge/certgen/pkg/util"
)

// Shared request template. Referenced sections follow the openssl
// configuration format so the on-disk artifacts stay usable with
// openssl for manual inspection and debugging.
const baseProfileTemplate = `
[ req ]
default_bits        = 2048
default_md          = sha256
default_keyfile     = privkey.pem
distinguished_name  = req_distinguished_name
req_extensions      = v3_req
x509_extensions     = v3_ca

[ req_distinguished_name ]
countryName                     = Country Name (2 letter code)
countryName_default             = CN
stateOrProvinceName             = State or Province Name
stateOrProvinceName_default     = State
localityName                    = Locality Name
localityName_default            = City
organizationName                = Organization Name
organizationName_default        = Organization
organizationalUnitName          = Organizational Unit Name
organizationalUnitName_default  = Unit
commonName                      = Common Name
commonName_max                  = 64
commonName_default              = localhost
emailAddress                    = Email Address
emailAddress_max                = 64
emailAddress_default            = admin@example.com

[ v3_req ]
basicConstraints       = CA:FALSE
keyUsage               = nonRepudiation, digitalSignature, keyEncipherment
extendedKeyUsage       = serverAuth
subjectAltName         = @alt_names

[ v3_ca ]
basicConstraints       = critical, CA:true
subjectKeyIdentifier   = hash
authorityKeyIdentifier = keyid:always, issuer:always
keyUsage               = cRLSign, keyCertSign, digitalSignature, nonRepudiation, keyEncipherment, dataEncipherment
`

// CA extension profile, without a subjectAltName
const caProfileTemplate = `
[ v3_ca ]
basicConstraints       = critical, CA:true
subjectKeyIdentifier   = hash
authorityKeyIdentifier = keyid:always, issuer:always
keyUsage               = cRLSign, keyCertSign, digitalSignature, nonRepudiation, keyEncipherment, dataEncipherment
`

// Server certificate extension profile
const leafProfileTemplate = `
[ v3_req ]
basicConstraints       = CA:FALSE
keyUsage               = nonRepudiation, digitalSignature, keyEncipherment
extendedKeyUsage       = serverAuth
subjectAltName         = @alt_names
`

func domainSANBlock(domain string) string {
	return fmt.Sprintf("\n[ alt_names ]\nDNS.1 = %s\n", domain)
}

func domainSubjectLine(domain string) string {
	return fmt.Sprintf("/C=CN/ST=State/L=City/O=Organization/OU=Unit/CN=%s", domain)
}

// Materializes the on-disk configuration profiles for the domain,
// writing defaults only for files that don't already exist. Files
// left behind by a previous run are never overwritten.
func (ca *CA) EnsureConfig(domain string) error {
	if err := ca.fs.MkdirAll(ca.caDir, 0755); err != nil {
		ca.logger.Error(err)
		return err
	}
	files := []struct {
		name    string
		content string
	}{
		{FILE_BASE_PROFILE, baseProfileTemplate},
		{FILE_CA_PROFILE, caProfileTemplate},
		{FILE_LEAF_PROFILE, leafProfileTemplate},
		{domain + FSEXT_PROFILE, domainSANBlock(domain)},
		{domain + FSEXT_SUBJECT, domainSubjectLine(domain)},
	}
	for _, file := range files {
		if err := ca.writeIfAbsent(file.name, []byte(file.content)); err != nil {
			return err
		}
	}
	return nil
}

// Writes the file unless it already exists. The content is staged to
// a temporary name and renamed into place so a failed write never
// leaves a partial file behind.
func (ca *CA) writeIfAbsent(name string, content []byte) error {
	path := ca.path(name)
	if util.FileExists(ca.fs, path) {
		return nil
	}
	staged := path + ".tmp"
	if err := afero.WriteFile(ca.fs, staged, content, 0644); err != nil {
		ca.logger.Error(err)
		return err
	}
	if err := ca.fs.Rename(staged, path); err != nil {
		ca.logger.Error(err)
		return err
	}
	return nil
}

// Concatenates the shared base profile, the server extension profile
// and the domain SAN block, in that order. When a section name repeats
// across the inputs, the last definition wins.
func (ca *CA) mergeProfiles(domain string) ([]byte, error) {
	parts := []string{
		FILE_BASE_PROFILE,
		FILE_LEAF_PROFILE,
		domain + FSEXT_PROFILE,
	}
	merged := new(bytes.Buffer)
	for _, name := range parts {
		data, err := afero.ReadFile(ca.fs, ca.path(name))
		if err != nil {
			ca.logger.Error(err)
			return nil, err
		}
		merged.Write(data)
		merged.WriteString("\n")
	}
	return merged.Bytes(), nil
}

type profile map[string]map[string]string

// Parses an openssl-style configuration profile into sections of
// key / value pairs. A section defined more than once replaces the
// earlier definition entirely.
func parseProfile(data []byte) profile {
	sections := make(profile)
	section := ""
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			sections[section] = make(map[string]string)
			continue
		}
		if section == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		sections[section][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return sections
}

type requestExtensions struct {
	isCA        bool
	keyUsage    x509.KeyUsage
	extKeyUsage []x509.ExtKeyUsage
	dnsNames    []string
}

// Resolves the v3_req section of a merged profile into x509 terms.
// The subjectAltName indirection (@alt_names) is followed into the
// referenced section, with entries ordered by their DNS index.
func resolveRequestExtensions(sections profile) (*requestExtensions, error) {
	v3req, ok := sections["v3_req"]
	if !ok {
		return nil, fmt.Errorf("%w: missing v3_req section", ErrInvalidProfile)
	}
	extensions := &requestExtensions{}
	if constraints, ok := v3req["basicConstraints"]; ok {
		extensions.isCA = strings.Contains(strings.ToLower(constraints), "ca:true")
	}
	for _, usage := range strings.Split(v3req["keyUsage"], ",") {
		switch strings.TrimSpace(usage) {
		case "digitalSignature":
			extensions.keyUsage |= x509.KeyUsageDigitalSignature
		case "nonRepudiation":
			extensions.keyUsage |= x509.KeyUsageContentCommitment
		case "keyEncipherment":
			extensions.keyUsage |= x509.KeyUsageKeyEncipherment
		case "dataEncipherment":
			extensions.keyUsage |= x509.KeyUsageDataEncipherment
		case "keyCertSign":
			extensions.keyUsage |= x509.KeyUsageCertSign
		case "cRLSign":
			extensions.keyUsage |= x509.KeyUsageCRLSign
		}
	}
	for _, usage := range strings.Split(v3req["extendedKeyUsage"], ",") {
		switch strings.TrimSpace(usage) {
		case "serverAuth":
			extensions.extKeyUsage = append(extensions.extKeyUsage, x509.ExtKeyUsageServerAuth)
		case "clientAuth":
			extensions.extKeyUsage = append(extensions.extKeyUsage, x509.ExtKeyUsageClientAuth)
		}
	}
	if san, ok := v3req["subjectAltName"]; ok && strings.HasPrefix(san, "@") {
		sectionName := strings.TrimPrefix(san, "@")
		altNames, ok := sections[sectionName]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s section", ErrInvalidProfile, sectionName)
		}
		extensions.dnsNames = dnsEntries(altNames)
	}
	return extensions, nil
}

// Returns the DNS.n entries of an alt_names section ordered by index
func dnsEntries(altNames map[string]string) []string {
	type entry struct {
		index int
		name  string
	}
	entries := make([]entry, 0, len(altNames))
	for key, value := range altNames {
		if !strings.HasPrefix(key, "DNS.") {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(key, "DNS."))
		if err != nil {
			continue
		}
		entries = append(entries, entry{index, value})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].index < entries[j].index
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Parses an openssl -subj style subject line, for example
// /C=CN/ST=State/L=City/O=Organization/OU=Unit/CN=example.com
func parseSubjectLine(line string) (pkix.Name, error) {
	var name pkix.Name
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return name, fmt.Errorf("%w: %s", ErrInvalidSubjectLine, line)
	}
	for _, rdn := range strings.Split(line[1:], "/") {
		if rdn == "" {
			continue
		}
		key, value, found := strings.Cut(rdn, "=")
		if !found {
			return name, fmt.Errorf("%w: %s", ErrInvalidSubjectLine, rdn)
		}
		switch key {
		case "C":
			name.Country = append(name.Country, value)
		case "ST":
			name.Province = append(name.Province, value)
		case "L":
			name.Locality = append(name.Locality, value)
		case "O":
			name.Organization = append(name.Organization, value)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, value)
		case "CN":
			name.CommonName = value
		}
	}
	return name, nil
}
