package opcua

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
)

const (
	UATransportBinary = "http://opcfoundation.org/UA-Profile/Transport/uatcp-uasc-uabinary"
)

var (
	endpointRegex = regexp.MustCompile("^opc\\.tcp://([^:/\\n]+)(?::([0-9]+))?(.*)$")

	ErrNoUsableEndpoint = errors.New("no endpoint with binary transport and anonymous access")
)

// Connect opens a session to the endpoint of f for the live importer. It
// prefers the endpoint with the highest security and falls back to weaker
// ones when the server rejects the connection.
func Connect(ctx context.Context, f *Flags) (*opcua.Client, error) {
	cl := contextLogger(WithEndpoint(ctx, f.Endpoint))
	endpoints, err := opcua.GetEndpoints(f.Endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "get endpoints from %s (%s)", f.Endpoint, UAErrorDesc(err))
	}
	candidates := filterEndpoints(endpoints)
	if len(candidates) == 0 {
		return nil, ErrNoUsableEndpoint
	}

	var certOpts []opcua.Option
	for _, ep := range candidates {
		if ep.SecurityMode > ua.MessageSecurityModeNone {
			if certOpts, err = clientCertificate(f); err != nil {
				return nil, err
			}
			break
		}
	}

	var lastErr error
	for _, ep := range candidates {
		url := normalizeEndpointURL(ep.EndpointURL, f.Endpoint)
		opts := []opcua.Option{
			opcua.ApplicationURI(f.ApplicationURI),
			opcua.ProductURI(f.ProductURI),
			opcua.ApplicationName(f.ApplicationName),
			opcua.SecurityFromEndpoint(ep, ua.UserTokenTypeAnonymous),
		}
		if ep.SecurityMode > ua.MessageSecurityModeNone {
			opts = append(opts, certOpts...)
		}
		c := opcua.NewClient(url, opts...)
		if err := c.Connect(ctx); err != nil {
			cl.Debugf("Connecting with %s/%v failed: %s", ep.SecurityPolicyURI, ep.SecurityMode, err)
			lastErr = err
			continue
		}
		cl.Infof("Connected with security policy %s, mode %v", ep.SecurityPolicyURI, ep.SecurityMode)
		return c, nil
	}
	return nil, errors.Wrapf(lastErr, "connecting to %s (%s)", f.Endpoint, UAErrorDesc(lastErr))
}

func clientCertificate(f *Flags) ([]opcua.Option, error) {
	if !fileExists(f.CertPath) && !fileExists(f.KeyPath) {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, errors.Wrap(err, "hostname for client certificate")
		}
		err = GenerateCert(CertRequest{
			Hosts:          hostname,
			ApplicationURI: f.ApplicationURI,
			CertFile:       f.CertPath,
			KeyFile:        f.KeyPath,
		})
		if err != nil {
			return nil, err
		}
	}
	c, err := tls.LoadX509KeyPair(f.CertPath, f.KeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading client certificate")
	}
	pk, ok := c.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("%s: private key is not RSA", f.KeyPath)
	}
	return []opcua.Option{opcua.Certificate(c.Certificate[0]), opcua.PrivateKey(pk)}, nil
}

// filterEndpoints keeps server endpoints with binary transport that accept
// anonymous users, most secure first.
func filterEndpoints(endpoints []*ua.EndpointDescription) []*ua.EndpointDescription {
	var out []*ua.EndpointDescription
	for _, e := range endpoints {
		if e.TransportProfileURI != UATransportBinary || e.Server == nil {
			continue
		}
		if e.Server.ApplicationType != ua.ApplicationTypeServer &&
			e.Server.ApplicationType != ua.ApplicationTypeClientAndServer {
			continue
		}
		for _, t := range e.UserIdentityTokens {
			if t.TokenType == ua.UserTokenTypeAnonymous {
				out = append(out, e)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SecurityMode != out[j].SecurityMode {
			return out[i].SecurityMode > out[j].SecurityMode
		}
		return out[i].SecurityLevel > out[j].SecurityLevel
	})
	return out
}

// normalizeEndpointURL replaces host and port of an advertised endpoint URL
// with those of the URL that was dialed; servers often advertise names that
// do not resolve from the client. A missing port defaults to 4840.
func normalizeEndpointURL(advertised, dialed string) string {
	adv := endpointRegex.FindStringSubmatch(advertised)
	dial := endpointRegex.FindStringSubmatch(dialed)
	if adv == nil {
		return advertised
	}
	host, port, path := adv[1], adv[2], adv[3]
	if dial != nil {
		host, port = dial[1], dial[2]
	}
	if port == "" {
		port = "4840"
	}
	return fmt.Sprintf("opc.tcp://%s:%s%s", host, port, path)
}
