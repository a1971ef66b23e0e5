// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mpdemux

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

var errCertKeyPair = errors.New("both cert file and key file are required for TLS")

// Config holds the receiver configuration.
type Config struct {
	Host string `env:"HOST" envDefault:""`
	Port string `env:"PORT" envDefault:""`

	CertFile     string `env:"CERT_FILE"      envDefault:""`
	KeyFile      string `env:"KEY_FILE"       envDefault:""`
	ClientCAFile string `env:"CLIENT_CA_FILE" envDefault:""`

	OutputDir  string `env:"OUTPUT_DIR"  envDefault:"parts"`
	PerSession bool   `env:"PER_SESSION" envDefault:"true"`

	BufferSize     int   `env:"BUFFER_SIZE"      envDefault:"8192"`
	MaxHeaderBytes int   `env:"MAX_HEADER_BYTES" envDefault:"65536"`
	MaxBodyBytes   int64 `env:"MAX_BODY_BYTES"   envDefault:"0"`

	MaxParsers  int           `env:"MAX_PARSERS"  envDefault:"256"`
	ParserWait  time.Duration `env:"PARSER_WAIT"  envDefault:"5s"`
	IdleParsers int           `env:"IDLE_PARSERS" envDefault:"16"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// NewConfig parses the receiver configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Address returns the listen address.
func (c Config) Address() string {
	return c.Host + ":" + c.Port
}

// TLS builds the listener TLS configuration. It returns nil when no
// certificate is configured. Setting ClientCAFile enables mTLS.
func (c Config) TLS() (*tls.Config, error) {
	if c.CertFile == "" && c.KeyFile == "" {
		return nil, nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errCertKeyPair
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if c.ClientCAFile != "" {
		pem, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in client CA file %s", c.ClientCAFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// CloudConfig holds the document service client configuration.
type CloudConfig struct {
	SubscriberID string        `env:"SUBSCRIBER_ID" envDefault:""`
	SigningKey   string        `env:"SIGNING_KEY"   envDefault:""`
	Address      string        `env:"ADDRESS"       envDefault:"cloud.hotdocs.ws"`
	Scheme       string        `env:"SCHEME"        envDefault:"https"`
	Proxy        string        `env:"PROXY"         envDefault:""`
	Timeout      time.Duration `env:"TIMEOUT"       envDefault:"5m"`
	BufferSize   int           `env:"BUFFER_SIZE"   envDefault:"8192"`

	RateCapacity int64 `env:"RATE_CAPACITY" envDefault:"10"`
	RateRefill   int64 `env:"RATE_REFILL"   envDefault:"5"`

	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`
}

// NewCloudConfig parses the document service client configuration from the
// environment.
func NewCloudConfig(opts env.Options) (CloudConfig, error) {
	c := CloudConfig{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return CloudConfig{}, err
	}
	return c, nil
}
