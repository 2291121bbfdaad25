// Copyright 2018 The Cactuar Authors
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
	"bytes"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/yaml"
)

// ArtifactKind selects the resource holding generated rules.
type ArtifactKind string

const (
	ConfigMapArtifact      ArtifactKind = "configmap"
	PrometheusRuleArtifact ArtifactKind = "prometheusrule"
)

type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Controller ControllerConfig `json:"controller"`
}

type HTTPConfig struct {
	Address string    `json:"address"`
	Port    int       `json:"port"`
	TLS     TLSConfig `json:"tls"`
}

type ControllerConfig struct {
	// Workers is the number of ServiceAlerts reconciled concurrently.
	Workers int `json:"workers"`

	ResyncPeriod           metav1.Duration `json:"resyncPeriod"`
	SuccessRequeueInterval metav1.Duration `json:"successRequeueInterval"`
	ErrorRequeueInterval   metav1.Duration `json:"errorRequeueInterval"`

	Artifact ArtifactKind `json:"artifact"`

	// NamespaceSelector restricts reconciliation to namespaces matching the
	// label selector. Empty means all namespaces.
	NamespaceSelector string `json:"namespaceSelector"`

	// InstallCRD applies the ServiceAlert CRD at startup.
	InstallCRD bool `json:"installCRD"`
}

// ListenAddress returns the host:port the HTTP server binds to.
func (c HTTPConfig) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func NewConfig(content io.Reader) (*Config, error) {
	c := Config{}

	err := yaml.NewYAMLOrJSONDecoder(content, 100).Decode(&c)
	if err != nil && err != io.EOF {
		return nil, err
	}

	res := &c
	if err := res.applyDefaults(); err != nil {
		return nil, err
	}

	if err := res.Validate(); err != nil {
		return nil, err
	}

	return res, nil
}

func NewConfigFromString(content string) (*Config, error) {
	if content == "" {
		return NewDefaultConfig(), nil
	}

	return NewConfig(bytes.NewBufferString(content))
}

func NewDefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address: "0.0.0.0",
			Port:    8080,
		},
		Controller: ControllerConfig{
			Workers:                2,
			ResyncPeriod:           metav1.Duration{Duration: 15 * time.Minute},
			SuccessRequeueInterval: metav1.Duration{Duration: 5 * time.Minute},
			ErrorRequeueInterval:   metav1.Duration{Duration: 60 * time.Second},
			Artifact:               ConfigMapArtifact,
		},
	}
}

// applyDefaults fills every zero field from the default configuration.
func (c *Config) applyDefaults() error {
	return errors.Wrap(mergo.Merge(c, NewDefaultConfig()), "applying configuration defaults")
}

// Validate returns an error if the configuration cannot be used.
func (c *Config) Validate() error {
	switch c.Controller.Artifact {
	case ConfigMapArtifact, PrometheusRuleArtifact:
	default:
		return errors.Errorf("unknown artifact kind %q, expected %q or %q",
			c.Controller.Artifact, ConfigMapArtifact, PrometheusRuleArtifact)
	}

	if c.Controller.Workers < 1 {
		return errors.Errorf("controller.workers must be positive, got %d", c.Controller.Workers)
	}

	for name, d := range map[string]metav1.Duration{
		"resyncPeriod":           c.Controller.ResyncPeriod,
		"successRequeueInterval": c.Controller.SuccessRequeueInterval,
		"errorRequeueInterval":   c.Controller.ErrorRequeueInterval,
	} {
		if d.Duration <= 0 {
			return errors.Errorf("controller.%s must be positive, got %s", name, d.Duration)
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return errors.Errorf("http.port out of range: %d", c.HTTP.Port)
	}

	if err := c.HTTP.TLS.validate(); err != nil {
		return err
	}

	if _, err := labels.Parse(c.Controller.NamespaceSelector); err != nil {
		return errors.Wrap(err, "invalid controller.namespaceSelector")
	}

	return nil
}
