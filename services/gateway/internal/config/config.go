package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Org names accepted by the gateway's org switch.
const (
	WhistleblowersOrg = "WhistleblowersOrg"
	VerifierOrg       = "VerifierOrg"
	LegalOrg          = "LegalOrg"
)

// Config is the gateway service configuration.
type Config struct {
	Port        int                   `yaml:"port"`
	Channel     string                `yaml:"channel"`
	Chaincode   string                `yaml:"chaincode"`
	DefaultOrg  string                `yaml:"default_org"`
	FrontendURL string                `yaml:"frontend_url"`
	BackendURL  string                `yaml:"backend_url"`
	MSPBasePath string                `yaml:"msp_base_path"`
	Orgs        map[string]OrgProfile `yaml:"orgs"`

	// SharedSecret enables svcauth on /api/fabric when set. Env only.
	SharedSecret string `yaml:"-"`
}

// OrgProfile is one organization's peer endpoint and admin credentials.
type OrgProfile struct {
	MSPID        string `yaml:"msp_id"`
	PeerEndpoint string `yaml:"peer_endpoint"`
	// GatewayPeer overrides the TLS server name; defaults to the endpoint host.
	GatewayPeer string `yaml:"gateway_peer"`
	// TLSCertPath switches the connection to TLS when set.
	TLSCertPath string `yaml:"tls_cert_path"`
	CertPath    string `yaml:"cert_path"`
	KeyPath     string `yaml:"key_path"`
}

// Default returns the Microfab layout: one peer per org on the nip.io
// hostnames and admin MSP material under _msp/.
func Default() *Config {
	cfg := &Config{
		Port:        5000,
		Channel:     "chainproof-channel",
		Chaincode:   "chainproof",
		DefaultOrg:  WhistleblowersOrg,
		FrontendURL: "http://localhost:7000",
		BackendURL:  "http://localhost:4000",
		MSPBasePath: "_msp",
		Orgs:        map[string]OrgProfile{},
	}
	for _, org := range []string{WhistleblowersOrg, VerifierOrg, LegalOrg} {
		cfg.Orgs[org] = microfabProfile(cfg.MSPBasePath, org)
	}
	return cfg
}

func microfabProfile(base, org string) OrgProfile {
	lower := strings.ToLower(org)
	msp := filepath.Join(base, org, lower+"admin", "msp")
	return OrgProfile{
		MSPID:        org + "MSP",
		PeerEndpoint: lower + "peer-api.127-0-0-1.nip.io:7070",
		CertPath:     filepath.Join(msp, "signcerts", "cert.pem"),
		KeyPath:      filepath.Join(msp, "keystore", "cert_sk"),
	}
}

// Load reads the YAML profile at path over the defaults, then applies env
// overrides. An empty path or a missing file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse gateway config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read gateway config: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from SERVICE_PORT, FABRIC_CHANNEL,
// FABRIC_CHAINCODE, DEFAULT_ORG, FRONTEND_URL, BACKEND_URL and
// GATEWAY_SHARED_SECRET.
func (c *Config) ApplyEnv() {
	c.Port = envIntDefault("SERVICE_PORT", c.Port)
	c.Channel = envDefault("FABRIC_CHANNEL", c.Channel)
	c.Chaincode = envDefault("FABRIC_CHAINCODE", c.Chaincode)
	c.DefaultOrg = envDefault("DEFAULT_ORG", c.DefaultOrg)
	c.FrontendURL = envDefault("FRONTEND_URL", c.FrontendURL)
	c.BackendURL = envDefault("BACKEND_URL", c.BackendURL)
	c.SharedSecret = envDefault("GATEWAY_SHARED_SECRET", c.SharedSecret)
}

func (c *Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Channel == "" || c.Chaincode == "" {
		return fmt.Errorf("channel and chaincode are required")
	}
	if _, ok := c.Orgs[c.DefaultOrg]; !ok {
		return fmt.Errorf("default org %q has no profile", c.DefaultOrg)
	}
	for name, p := range c.Orgs {
		if strings.TrimSpace(p.MSPID) == "" {
			return fmt.Errorf("org %q: msp_id is required", name)
		}
		if strings.TrimSpace(p.PeerEndpoint) == "" {
			return fmt.Errorf("org %q: peer_endpoint is required", name)
		}
	}
	return nil
}

// OrgNames returns the configured org names in sorted order.
func (c *Config) OrgNames() []string {
	names := make([]string, 0, len(c.Orgs))
	for name := range c.Orgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
