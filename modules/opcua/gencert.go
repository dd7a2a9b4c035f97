package opcua

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CertRequest describes the self-signed client certificate OPC UA servers
// expect from the importer.
type CertRequest struct {
	// Hosts is a comma separated list of DNS names and IP addresses.
	Hosts          string
	ApplicationURI string
	RSABits        int
	Validity       time.Duration
	CertFile       string
	KeyFile        string
}

// GenerateCert writes a new key pair to req.CertFile and req.KeyFile.
func GenerateCert(req CertRequest) error {
	if req.Hosts == "" {
		return errors.New("certificate needs at least one host")
	}
	if req.RSABits == 0 {
		req.RSABits = 2048
	}
	if req.Validity == 0 {
		req.Validity = 2 * 365 * 24 * time.Hour
	}

	priv, err := rsa.GenerateKey(rand.Reader, req.RSABits)
	if err != nil {
		return errors.Wrap(err, "generating private key")
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return errors.Wrap(err, "generating serial number")
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"uanodes"},
			CommonName:   "uanodes model importer",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(req.Validity),
		KeyUsage:              x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range strings.Split(req.Hosts, ",") {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	// servers match the application URI against the SAN URI
	if req.ApplicationURI != "" {
		u, err := url.Parse(req.ApplicationURI)
		if err != nil {
			return errors.Wrapf(err, "application URI %q", req.ApplicationURI)
		}
		template.URIs = append(template.URIs, u)
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return errors.Wrap(err, "creating certificate")
	}
	if err := writePEM(req.CertFile, 0644, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return err
	}
	if err := writePEM(req.KeyFile, 0600, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}); err != nil {
		return err
	}
	log.Infof("Wrote client certificate %s and key %s", req.CertFile, req.KeyFile)
	return nil
}

func writePEM(path string, mode os.FileMode, block *pem.Block) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	if err := pem.Encode(f, block); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
