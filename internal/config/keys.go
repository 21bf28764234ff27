package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Key provider backends.
const (
	KeyBackendLocal  = "local"
	KeyBackendRemote = "remote"
)

// KeysConfig selects and parameterizes the root key custodian. Values come
// from the environment by default; KEYS_CONFIG_FILE points at a YAML file
// that overrides them, which is how deployments keep custodian credentials
// out of the process environment.
type KeysConfig struct {
	Backend string `yaml:"backend"`

	// local backend
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`

	// remote backend
	CustodianURL     string        `yaml:"custodian_url"`
	CustodianToken   string        `yaml:"custodian_token"`
	CustodianTimeout time.Duration `yaml:"custodian_timeout"`
}

func loadKeysConfig() KeysConfig {
	kc := KeysConfig{
		Backend:          getEnv("KEY_BACKEND", KeyBackendLocal),
		Passphrase:       getEnv("KEY_PASSPHRASE", ""),
		Salt:             getEnv("KEY_SALT", ""),
		CustodianURL:     getEnv("CUSTODIAN_URL", ""),
		CustodianToken:   getEnv("CUSTODIAN_TOKEN", ""),
		CustodianTimeout: getEnvDuration("CUSTODIAN_TIMEOUT", 5*time.Second),
	}

	if path := os.Getenv("KEYS_CONFIG_FILE"); path != "" {
		if fileCfg, err := LoadKeysFile(path); err == nil {
			kc = *fileCfg
		} else {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s: %v\n", path, err)
		}
	}
	return kc
}

// LoadKeysFile reads a KeysConfig from a YAML file.
func LoadKeysFile(path string) (*KeysConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys config: %w", err)
	}
	var kc KeysConfig
	if err := yaml.Unmarshal(data, &kc); err != nil {
		return nil, fmt.Errorf("parse keys config: %w", err)
	}
	if kc.Backend == "" {
		kc.Backend = KeyBackendLocal
	}
	if kc.CustodianTimeout == 0 {
		kc.CustodianTimeout = 5 * time.Second
	}
	return &kc, nil
}

// Validate checks that the selected backend has what it needs.
func (kc *KeysConfig) Validate() error {
	switch kc.Backend {
	case KeyBackendLocal:
		if kc.Passphrase == "" {
			return fmt.Errorf("local key backend requires a passphrase")
		}
	case KeyBackendRemote:
		if kc.CustodianURL == "" {
			return fmt.Errorf("remote key backend requires a custodian url")
		}
	default:
		return fmt.Errorf("unknown key backend %q", kc.Backend)
	}
	return nil
}
