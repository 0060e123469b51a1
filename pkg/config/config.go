// Package config contains the definition of the broker settings structure
// and the logic required to load it from a JSON settings file.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/interstate-love-song/broker/pkg/mapping"
)

// Mapper selection values for the "mapper" setting.
const (
	MapperSimple           = "SIMPLE"
	MapperSimpleWebservice = "SIMPLE_WEBSERVICE"
)

// Session store types for the "session.type" setting.
const (
	SessionStoreMemory = "memory"
	SessionStoreFile   = "file"
)

// Settings holds the broker configuration. Fields with a default may be
// omitted in the config file.
type Settings struct {
	Mapper                 string               `mapstructure:"mapper"`
	Server                 ServerSettings       `mapstructure:"server"`
	Logging                LoggingSettings      `mapstructure:"logging"`
	Session                SessionSettings      `mapstructure:"session"`
	SimpleMapper           SimpleMapperSettings `mapstructure:"simple_mapper"`
	SimpleWebserviceMapper WebserviceSettings   `mapstructure:"simple_webservice_mapper"`
	Agent                  AgentSettings        `mapstructure:"agent"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Address string `mapstructure:"address"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
	Metrics bool   `mapstructure:"metrics"`
}

// LoggingSettings configures the logger.
type LoggingSettings struct {
	Level string `mapstructure:"level"`
}

// SessionSettings configures the session store backend.
type SessionSettings struct {
	Type       string `mapstructure:"type"`
	DataDir    string `mapstructure:"data_dir"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// SimpleMapperSettings configures the single-user mapper.
type SimpleMapperSettings struct {
	Username     string             `mapstructure:"username"`
	PasswordHash string             `mapstructure:"password_hash"`
	Domains      []string           `mapstructure:"domains"`
	Resources    []mapping.Resource `mapstructure:"resources"`
}

// WebserviceSettings configures the webservice mapper.
type WebserviceSettings struct {
	BaseURL string   `mapstructure:"base_url"`
	Domains []string `mapstructure:"domains"`
}

// AgentSettings configures the outbound agent client.
type AgentSettings struct {
	// VerifyTLS enables verification of agent certificates. It defaults to
	// false because agents present per-host self-signed certificates.
	VerifyTLS      bool `mapstructure:"verify_tls"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	Port           int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mapper", MapperSimple)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.metrics", false)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("session.type", SessionStoreMemory)
	v.SetDefault("session.data_dir", filepath.Join(xdg.StateHome, "interstate", "sessions"))
	v.SetDefault("session.ttl_minutes", 60)
	v.SetDefault("simple_mapper.username", "test")
	v.SetDefault("simple_mapper.password_hash", "change_me")
	v.SetDefault("agent.verify_tls", false)
	v.SetDefault("agent.timeout_seconds", 10)
	v.SetDefault("agent.port", 60443)
}

// Load reads the settings from the given JSON file. An empty path yields
// the defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks the cross-field constraints the decoder cannot.
func (s *Settings) Validate() error {
	switch s.Mapper {
	case MapperSimple, MapperSimpleWebservice:
	default:
		return fmt.Errorf("unknown mapper %q (valid: %s, %s)", s.Mapper, MapperSimple, MapperSimpleWebservice)
	}

	switch s.Session.Type {
	case SessionStoreMemory, SessionStoreFile:
	default:
		return fmt.Errorf("unknown session store type %q (valid: %s, %s)",
			s.Session.Type, SessionStoreMemory, SessionStoreFile)
	}

	if s.Mapper == MapperSimpleWebservice && s.SimpleWebserviceMapper.BaseURL == "" {
		return fmt.Errorf("simple_webservice_mapper.base_url is required for the %s mapper", MapperSimpleWebservice)
	}

	if (s.Server.TLSCert == "") != (s.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}

	return nil
}
