// Copyright 2025 The Cactuar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package manifests

import (
	"crypto/tls"

	"github.com/pkg/errors"
	cliflag "k8s.io/component-base/cli/flag"
)

var (
	// DefaultTLSCiphers follow the intermediate Mozilla profile.
	DefaultTLSCiphers = []string{
		"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
		"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
		"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
		"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
	}
	DefaultMinTLSVersion = "VersionTLS12"
)

// TLSConfig enables HTTPS on the HTTP server when both files are set. The
// admission webhook is only reachable by the API server over HTTPS.
type TLSConfig struct {
	CertFile     string   `json:"certFile"`
	KeyFile      string   `json:"keyFile"`
	MinVersion   string   `json:"minVersion"`
	CipherSuites []string `json:"cipherSuites"`
}

func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// TLSCiphers returns the configured cipher suites or the defaults.
func (c TLSConfig) TLSCiphers() []string {
	if len(c.CipherSuites) == 0 {
		return DefaultTLSCiphers
	}
	return c.CipherSuites
}

// MinTLSVersion returns the configured minimum version or the default.
func (c TLSConfig) MinTLSVersion() string {
	if c.MinVersion == "" {
		return DefaultMinTLSVersion
	}
	return c.MinVersion
}

// ServerConfig returns the crypto/tls configuration of the HTTP server. The
// certificate itself is loaded by the server.
func (c TLSConfig) ServerConfig() (*tls.Config, error) {
	version, err := cliflag.TLSVersion(c.MinTLSVersion())
	if err != nil {
		return nil, errors.Wrap(err, "invalid http.tls.minVersion")
	}

	ciphers, err := cliflag.TLSCipherSuites(c.TLSCiphers())
	if err != nil {
		return nil, errors.Wrap(err, "invalid http.tls.cipherSuites")
	}

	return &tls.Config{
		MinVersion:   version,
		CipherSuites: ciphers,
		// HTTP/2 is disabled, the server only answers scrapes, probes and
		// admission reviews.
		NextProtos: []string{"http/1.1"},
	}, nil
}

func (c TLSConfig) validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("http.tls.certFile and http.tls.keyFile must be set together")
	}

	_, err := c.ServerConfig()
	return err
}
