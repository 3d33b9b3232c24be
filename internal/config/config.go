package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
			// Aplicar las migraciones embebidas al arrancar.
			Migrate bool `yaml:"migrate"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	UMA struct {
		Issuer string `yaml:"issuer"`

		// Lifetimes como strings de duración ("1h", "720h").
		TicketLifetime string `yaml:"ticket_lifetime"` // default 1h
		PCTLifetime    string `yaml:"pct_lifetime"`    // default 720h (30 días)
		RPTLifetime    string `yaml:"rpt_lifetime"`    // default 1h

		// Endpoint al que se redirige al end-user para claims gathering.
		ClaimsGatheringEndpoint string `yaml:"claims_gathering_endpoint"`

		// Si un permission no tiene policies: conceder (true, "sin protección")
		// o denegar (false).
		GrantAccessIfNoPolicies bool `yaml:"grant_access_if_no_policies"`

		// Validar firma/issuer/expiry del claim_token presentado.
		ValidateClaimToken bool `yaml:"validate_claim_token"`

		// Denegar acceso si el recurso tiene clients asociados y el
		// solicitante no está entre ellos.
		RestrictResourceToClient bool `yaml:"restrict_resource_to_client"`

		// Timeout por invocación de policy script.
		PolicyTimeout string `yaml:"policy_timeout"` // default 10s

		// Path del keystore de firma (JSON). Vacío ⇒ clave efímera.
		KeystorePath string `yaml:"keystore_path"`

		// Path del YAML de policies declarativas. Vacío ⇒ sin loader: las
		// policies sólo pueden registrarse programáticamente y el reload
		// admin es un no-op (se loguea).
		PolicyFile string `yaml:"policy_file"`
	} `yaml:"uma"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	Admin struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML, aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// Defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8085"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.UMA.TicketLifetime == "" {
		c.UMA.TicketLifetime = "1h"
	}
	if c.UMA.PCTLifetime == "" {
		c.UMA.PCTLifetime = "720h"
	}
	if c.UMA.RPTLifetime == "" {
		c.UMA.RPTLifetime = "1h"
	}
	if c.UMA.PolicyTimeout == "" {
		c.UMA.PolicyTimeout = "10s"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE"); ok {
		c.Storage.Postgres.Migrate = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("UMA_ISSUER"); ok {
		c.UMA.Issuer = v
	}
	if v, ok := getEnvStr("UMA_CLAIMS_GATHERING_ENDPOINT"); ok {
		c.UMA.ClaimsGatheringEndpoint = v
	}
	if v, ok := getEnvBool("UMA_GRANT_ACCESS_IF_NO_POLICIES"); ok {
		c.UMA.GrantAccessIfNoPolicies = v
	}
	if v, ok := getEnvBool("UMA_VALIDATE_CLAIM_TOKEN"); ok {
		c.UMA.ValidateClaimToken = v
	}
	if v, ok := getEnvStr("UMA_KEYSTORE_PATH"); ok {
		c.UMA.KeystorePath = v
	}
	if v, ok := getEnvStr("UMA_POLICY_FILE"); ok {
		c.UMA.PolicyFile = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Admin.APIKey = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

// Validate chequea coherencia básica y formato de duraciones.
func (c *Config) Validate() error {
	for name, s := range map[string]string{
		"uma.ticket_lifetime": c.UMA.TicketLifetime,
		"uma.pct_lifetime":    c.UMA.PCTLifetime,
		"uma.rpt_lifetime":    c.UMA.RPTLifetime,
		"uma.policy_timeout":  c.UMA.PolicyTimeout,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Rate.Window != "" {
		if _, err := time.ParseDuration(c.Rate.Window); err != nil {
			return fmt.Errorf("config: rate.window: %w", err)
		}
	}
	if c.Cache.Memory.DefaultTTL != "" {
		if _, err := time.ParseDuration(c.Cache.Memory.DefaultTTL); err != nil {
			return fmt.Errorf("config: cache.memory.default_ttl: %w", err)
		}
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn required for postgres driver")
	}
	if c.UMA.Issuer == "" && strings.ToLower(c.App.Env) == "prod" {
		return fmt.Errorf("config: uma.issuer required in prod")
	}
	return nil
}

// Duración parseada con default: los strings ya fueron validados en Load.
func (c *Config) TicketLifetime() time.Duration { return mustDur(c.UMA.TicketLifetime, time.Hour) }
func (c *Config) PCTLifetime() time.Duration    { return mustDur(c.UMA.PCTLifetime, 720*time.Hour) }
func (c *Config) RPTLifetime() time.Duration    { return mustDur(c.UMA.RPTLifetime, time.Hour) }
func (c *Config) PolicyTimeout() time.Duration  { return mustDur(c.UMA.PolicyTimeout, 10*time.Second) }

func mustDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && strings.TrimSpace(v) != ""
}

func getEnvBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}
