package main

import (
	"crypto"
	"crypto/tls"
	"net"
)

// Config holds the application configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Relay  RelayConfig  `toml:"relay"`
	DKIM   DKIMConfig   `toml:"dkim"`
	TLS    TLSConfig    `toml:"tls"`
}

// ServerConfig defines the SMTP server settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	Domain     string `toml:"domain"` // EHLO identity
	Env        string `toml:"env" envconfig:"ENV"`
	Secure     bool   `toml:"secure" envconfig:"SECURE"`
	Port       int    `toml:"port" envconfig:"PORT"`
}

// RelayConfig mirrors spec §3's Configuration block.
type RelayConfig struct {
	MaxMessageSize     int64    `toml:"max_message_size"`
	RateLimitMax       int64    `toml:"rate_limit_max"`
	RateLimitWindowMs  int64    `toml:"rate_limit_window_ms"`
	Exchanges          []string `toml:"exchanges"`
	DisposableListPath string   `toml:"disposable_list_path"`
	DNSServers         []string `toml:"dns_servers"`
}

// DKIMConfig is required for outbound signing in production (spec §3).
type DKIMConfig struct {
	DomainName     string `toml:"domain_name"`
	Selector       string `toml:"selector"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// TLSConfig is required in production (spec §3).
type TLSConfig struct {
	KeyFile  string `toml:"key"`
	CertFile string `toml:"cert"`
	CAFile   string `toml:"ca"`
}

func (c *ServerConfig) isProduction() bool { return c.Env == "production" }
func (c *ServerConfig) isTest() bool       { return c.Env == "test" }

// Backend implements smtp.Backend. Every field is immutable after startup
// and shared by reference across sessions (spec §5's "no process-wide
// mutable state in the relay itself" — the exception being the rate
// limiter's own atomic counter store).
type Backend struct {
	resolver  *Resolver
	limiter   *RateLimiter
	deny      *disposableSet
	deliverer *DeliveryClient
	dkimKey   crypto.Signer
	cfg       *Config
	log       *relayLogger
}

// Envelope is the mutable per-session SMTP state, per spec §3.
type Envelope struct {
	ClientIP   net.IP
	ClientHelo string
	MailFrom   string
	Recipients []ResolvedRecipient
}

// ResolvedRecipient pairs the original RCPT TO address with its computed
// forwarding target, per spec §3's "Resolved recipient" invariant.
type ResolvedRecipient struct {
	Original string
	Resolved string
}

// Session implements smtp.Session and drives the state machine described
// in spec §4.I.
type Session struct {
	be       *Backend
	envelope Envelope
	remoteIP net.IP
	helo     string
	log      *relayLogger
}

// deliveryResult captures the outcome of one recipient's outbound delivery
// attempt for the fan-out aggregation in spec §4.I step 5.
type deliveryResult struct {
	recipient string
	err       error
}

func loadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
