package main

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/emersion/go-smtp"
	"github.com/kelseyhightower/envconfig"
)

func main() {
	configPath := "config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
		os.Exit(1)
	}
	if err := envconfig.Process("", &cfg.Server); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply environment overrides: %v\n", err)
		os.Exit(1)
	}
	applyDefaults(&cfg)

	log := newRelayLogger(!cfg.Server.isProduction())

	deny, err := loadDisposableSet(cfg.Relay.DisposableListPath)
	if err != nil {
		log.Error("failed to load disposable domain list", err, nil)
		os.Exit(1)
	}

	resolver := NewResolver(cfg.Relay.DNSServers, 5*time.Second)
	limiter := NewRateLimiter(cfg.Relay.RateLimitMax, time.Duration(cfg.Relay.RateLimitWindowMs)*time.Millisecond)
	deliverer := NewDeliveryClient(resolver, primaryExchange(cfg.Relay.Exchanges), !cfg.Server.isProduction())

	var dkimKey crypto.Signer
	if cfg.DKIM.PrivateKeyPath != "" {
		key, err := loadOrGenerateDKIMKey(cfg.DKIM.PrivateKeyPath, cfg.DKIM.Selector, log)
		if err != nil {
			log.Error("failed to load DKIM key", err, nil)
			os.Exit(1)
		}
		dkimKey = key
	} else if cfg.Server.isProduction() {
		log.Error("DKIM private key is required in production", nil, nil)
		os.Exit(1)
	}

	be := &Backend{
		resolver:  resolver,
		limiter:   limiter,
		deny:      deny,
		deliverer: deliverer,
		dkimKey:   dkimKey,
		cfg:       &cfg,
		log:       log,
	}

	srv := smtp.NewServer(be)
	srv.Addr = listenAddr(cfg)
	srv.Domain = cfg.Server.Domain
	srv.MaxMessageBytes = cfg.Relay.MaxMessageSize
	srv.AllowInsecureAuth = false

	if cfg.TLS.CertFile != "" {
		tlsConfig, err := loadTLSConfig(cfg.TLS)
		if err != nil {
			log.Error("failed to load TLS certificate material", err, nil)
			os.Exit(1)
		}
		srv.TLSConfig = tlsConfig
	} else if cfg.Server.isProduction() {
		log.Error("TLS certificate/key is required in production", nil, nil)
		os.Exit(1)
	}

	log.Info("relay listening", map[string]any{"addr": srv.Addr, "ehlo": srv.Domain, "env": cfg.Server.Env})
	if err := srv.ListenAndServe(); err != nil {
		log.Error("server exited with error", err, nil)
		os.Exit(1)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Relay.MaxMessageSize == 0 {
		cfg.Relay.MaxMessageSize = 25 * 1024 * 1024
	}
	if cfg.Relay.RateLimitMax == 0 {
		cfg.Relay.RateLimitMax = 100
	}
	if cfg.Relay.RateLimitWindowMs == 0 {
		cfg.Relay.RateLimitWindowMs = int64(time.Hour / time.Millisecond)
	}
	if len(cfg.Relay.Exchanges) == 0 {
		cfg.Relay.Exchanges = []string{"mx1.forwardemail.net", "mx2.forwardemail.net"}
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":25"
	}
	if cfg.DKIM.Selector == "" {
		cfg.DKIM.Selector = "default"
	}
}

func listenAddr(cfg Config) string {
	if cfg.Server.Port != 0 {
		return fmt.Sprintf(":%d", cfg.Server.Port)
	}
	return cfg.Server.ListenAddr
}

func primaryExchange(exchanges []string) string {
	if len(exchanges) == 0 {
		return "mx1.forwardemail.net"
	}
	return exchanges[0]
}

// loadOrGenerateDKIMKey mirrors the teacher's ensureDKIMKey: generate a
// fresh 2048-bit RSA key and log its public material if none exists yet at
// path, otherwise load the existing one.
func loadOrGenerateDKIMKey(path, selector string, log *relayLogger) (*rsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block in %s", path)
		}
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	log.Info("DKIM key not found, generating new RSA key", map[string]any{"path": path, "selector": selector})

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate DKIM key: %w", err)
	}

	pemBlock := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	defer f.Close()
	if err := pem.Encode(f, pemBlock); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err == nil {
		log.Info("DKIM key generated; publish this as a TXT record", map[string]any{
			"selector": selector,
			"record":   "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub),
		})
	}

	return key, nil
}
