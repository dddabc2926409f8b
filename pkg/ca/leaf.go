package ca

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/proxyforge/certgen/pkg/util"
)

// Issues a server certificate for the domain, signed by the CA. The
// shared profiles, domain files and CA key/certificate must already
// exist; every missing artifact is reported up front, before any
// cryptographic operation runs.
//
// The pipeline order is fixed: profile merge, key generation, PKCS#8
// normalization, signing request, signing, cleanup.
func (ca *CA) IssueLeaf(domain string) (*LeafIdentity, error) {

	ca.logger.Infof("Generating server certificate for %s", domain)

	if err := ca.checkPrerequisites(domain); err != nil {
		return nil, err
	}

	caKey, caCert, err := ca.Load()
	if err != nil {
		return nil, err
	}

	merged, err := ca.mergeProfiles(domain)
	if err != nil {
		return nil, err
	}

	// The merged profile lives only for this run; the scratch set
	// removes it on every exit path.
	profileFile, err := ca.scratch.Put(merged)
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}
	defer ca.scratch.Release(profileFile)

	profileBytes, err := afero.ReadFile(ca.fs, profileFile)
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}
	extensions, err := resolveRequestExtensions(parseProfile(profileBytes))
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}

	subjectLine, err := afero.ReadFile(ca.fs, ca.path(domain+FSEXT_SUBJECT))
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}
	subject, err := parseSubjectLine(string(subjectLine))
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}

	// Fresh key on every issuance. Any previous key for this domain
	// is overwritten, invalidating certificates issued under it.
	var privateKey *rsa.PrivateKey
	if err := ca.run("generate server private key", func() error {
		var err error
		privateKey, err = rsa.GenerateKey(ca.random, ca.config.KeySize)
		return err
	}); err != nil {
		return nil, err
	}

	keyFile := ca.path(domain + FSEXT_PRIVATE_PEM)
	if err := ca.run("persist server private key", func() error {
		keyPEM, err := EncodePrivKeyPEM(privateKey)
		if err != nil {
			return err
		}
		return afero.WriteFile(ca.fs, keyFile, keyPEM, 0600)
	}); err != nil {
		return nil, err
	}

	// Normalize the traditional PKCS#1 encoding to PKCS#8 in place.
	// Downstream TLS consumers expect the standard encoding.
	if err := ca.run("convert server private key to PKCS#8", func() error {
		pkcs8PEM, err := EncodePrivKeyPKCS8PEM(privateKey)
		if err != nil {
			return err
		}
		return afero.WriteFile(ca.fs, keyFile, pkcs8PEM, 0600)
	}); err != nil {
		return nil, err
	}

	csrFile := ca.path(domain + FSEXT_CSR)
	var csrPEM []byte
	if err := ca.run("create certificate signing request", func() error {
		template := &x509.CertificateRequest{
			Subject:            subject,
			SignatureAlgorithm: x509.SHA256WithRSA,
			DNSNames:           extensions.dnsNames,
		}
		csrDER, err := x509.CreateCertificateRequest(ca.random, template, privateKey)
		if err != nil {
			return err
		}
		if csrPEM, err = EncodeCSR(csrDER); err != nil {
			return err
		}
		return afero.WriteFile(ca.fs, csrFile, csrPEM, 0644)
	}); err != nil {
		return nil, err
	}

	csr, err := DecodeCSR(csrPEM)
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}

	serialNumber, err := ca.nextSerialNumber()
	if err != nil {
		return nil, err
	}

	var derBytes []byte
	if err := ca.run("sign server certificate", func() error {
		// SANs come from the request; usages and constraints from
		// the merged extension profile.
		template := &x509.Certificate{
			Signature:             csr.Signature,
			SignatureAlgorithm:    csr.SignatureAlgorithm,
			PublicKeyAlgorithm:    csr.PublicKeyAlgorithm,
			PublicKey:             csr.PublicKey,
			SerialNumber:          serialNumber,
			Issuer:                caCert.Subject,
			Subject:               csr.Subject,
			AuthorityKeyId:        caCert.SubjectKeyId,
			NotBefore:             time.Now(),
			NotAfter:              time.Now().AddDate(0, 0, ca.config.LeafValidDays),
			IsCA:                  extensions.isCA,
			KeyUsage:              extensions.keyUsage,
			ExtKeyUsage:           extensions.extKeyUsage,
			BasicConstraintsValid: true,
			DNSNames:              csr.DNSNames,
		}
		var err error
		derBytes, err = x509.CreateCertificate(
			ca.random, template, caCert, csr.PublicKey, caKey)
		return err
	}); err != nil {
		return nil, err
	}

	certFile := ca.path(domain + FSEXT_PEM)
	certPEM, err := EncodePEM(derBytes)
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}
	if err := afero.WriteFile(ca.fs, certFile, certPEM, 0644); err != nil {
		ca.logger.Error(err)
		return nil, err
	}

	// The signing request carries no further value once the
	// certificate is issued
	if err := ca.fs.Remove(csrFile); err != nil {
		ca.logger.Warnf("certificate-authority: %s", err)
	}

	certificate, err := x509.ParseCertificate(derBytes)
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}

	ca.logger.Infof("Server certificate generated: %s", certFile)

	return &LeafIdentity{
		Domain:      domain,
		KeyFile:     keyFile,
		CertFile:    certFile,
		Certificate: certificate}, nil
}

// Pre-flight check for leaf issuance. A single missing artifact
// produces one clear diagnostic enumerating everything absent,
// rather than a deep failure mid-pipeline.
func (ca *CA) checkPrerequisites(domain string) error {
	required := []string{
		FILE_BASE_PROFILE,
		FILE_LEAF_PROFILE,
		domain + FSEXT_PROFILE,
		domain + FSEXT_SUBJECT,
		FILE_CA_KEY,
		FILE_CA_CERT,
	}
	var missing []string
	for _, name := range required {
		path := ca.path(name)
		if !util.FileExists(ca.fs, path) {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("%w: %s", ErrMissingPrerequisite, strings.Join(missing, ", "))
		ca.logger.Error(err)
		return err
	}
	return nil
}
