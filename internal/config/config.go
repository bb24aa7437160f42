// Package config provides functionality for managing configuration options
// for the server and the client using command-line flags, an optional JSON
// config file, a .env file and environment variables.
//
// Precedence, lowest first: defaults, config file, flags, environment.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// ServerOptions holds the configuration values of the development backend.
type ServerOptions struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the database connection string.
	DatabaseDSN string `json:"database_dsn"`

	// PublicURL is the externally reachable base URL used in payment links.
	PublicURL string `json:"public_url"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	TokenTTL        time.Duration `json:"-"`
	PaymentTTL      time.Duration `json:"-"`
	JanitorInterval time.Duration `json:"-"`

	// Config is the path to the config file.
	Config string `json:"-"`
	// EnvFile is the path to an optional .env file.
	EnvFile string `json:"-"`
}

// ClientOptions holds the configuration values of the interactive client.
type ClientOptions struct {
	// ServerURL is the account service base URL.
	ServerURL string `json:"server_url"`

	// StoragePath is the local key-value file. Ignored when RedisAddr is set.
	StoragePath string `json:"storage_path"`
	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`

	// CAPath is an extra root certificate for a self-signed server.
	CAPath string `json:"ca_cert"`

	// CatalogPath replaces the embedded catalog when set.
	CatalogPath string `json:"catalog_path"`

	// Prerequisites is "catalog" or "stage".
	Prerequisites string `json:"prerequisites"`
	Lang          string `json:"lang"`
	LogLevel      string `json:"log_level"`

	Timeout time.Duration `json:"-"`

	Config  string `json:"-"`
	EnvFile string `json:"-"`
}

// ErrHelp is returned when -h or -help was requested.
var ErrHelp = flag.ErrHelp

type envVar struct {
	key string
	dst *string
}

func defaultServer() *ServerOptions {
	return &ServerOptions{
		Port:            "localhost:8080",
		LogLevel:        "info",
		LogFormat:       "json",
		TokenTTL:        30 * 24 * time.Hour,
		PaymentTTL:      time.Hour,
		JanitorInterval: 10 * time.Minute,
		Config:          "config.json",
		EnvFile:         ".env",
	}
}

func bindServer(fs *flag.FlagSet, o *ServerOptions) {
	fs.StringVar(&o.Port, "a", o.Port, "run on ip:port server")
	fs.StringVar(&o.DatabaseDSN, "d", o.DatabaseDSN, "db address")
	fs.StringVar(&o.PublicURL, "public-url", o.PublicURL, "externally reachable base URL")
	fs.StringVar(&o.TLSCert, "tls-cert", o.TLSCert, "TLS certificate file")
	fs.StringVar(&o.TLSKey, "tls-key", o.TLSKey, "TLS key file")
	fs.StringVar(&o.LogLevel, "l", o.LogLevel, "log level")
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "log format: json or console")
	fs.DurationVar(&o.TokenTTL, "token-ttl", o.TokenTTL, "session token lifetime")
	fs.DurationVar(&o.PaymentTTL, "payment-ttl", o.PaymentTTL, "time before a pending payment expires")
	fs.DurationVar(&o.JanitorInterval, "janitor-interval", o.JanitorInterval, "cleanup interval")
	fs.StringVar(&o.Config, "config", o.Config, "path to config file")
	fs.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
	fs.StringVar(&o.EnvFile, "env-file", o.EnvFile, "path to .env file")
}

// ParseServer parses args (without the program name) into ServerOptions.
func ParseServer(args []string) (*ServerOptions, error) {
	o := defaultServer()
	bind := func(fs *flag.FlagSet) { bindServer(fs, o) }
	if err := parse("server", args, bind, &o.Config, &o.EnvFile, o); err != nil {
		return nil, err
	}

	applyEnv([]envVar{
		{"SERVER_ADDRESS", &o.Port},
		{"DATABASE_DSN", &o.DatabaseDSN},
		{"PUBLIC_URL", &o.PublicURL},
		{"TLS_CERT", &o.TLSCert},
		{"TLS_KEY", &o.TLSKey},
		{"LOG_LEVEL", &o.LogLevel},
		{"LOG_FORMAT", &o.LogFormat},
	})

	if o.PublicURL == "" {
		scheme := "http"
		if o.TLSEnabled() {
			scheme = "https"
		}
		o.PublicURL = scheme + "://" + o.Port
	}
	return o, nil
}

// TLSEnabled reports whether both certificate and key are configured.
func (o *ServerOptions) TLSEnabled() bool { return o.TLSCert != "" && o.TLSKey != "" }

func defaultClient() *ClientOptions {
	return &ClientOptions{
		ServerURL:     "http://localhost:8080",
		StoragePath:   "coursekeeper.json",
		RedisPrefix:   "coursekeeper:",
		Prerequisites: "catalog",
		Lang:          "en",
		LogLevel:      "warn",
		Timeout:       10 * time.Second,
		Config:        "client.json",
		EnvFile:       ".env",
	}
}

func bindClient(fs *flag.FlagSet, o *ClientOptions) {
	fs.StringVar(&o.ServerURL, "s", o.ServerURL, "account server base URL")
	fs.StringVar(&o.StoragePath, "storage", o.StoragePath, "local storage file")
	fs.StringVar(&o.RedisAddr, "redis", o.RedisAddr, "store local state in redis at host:port")
	fs.StringVar(&o.RedisPrefix, "redis-prefix", o.RedisPrefix, "redis key prefix")
	fs.StringVar(&o.CAPath, "ca", o.CAPath, "extra CA certificate for the server")
	fs.StringVar(&o.CatalogPath, "catalog", o.CatalogPath, "catalog JSON file")
	fs.StringVar(&o.Prerequisites, "prereq", o.Prerequisites, "prerequisite policy: catalog or stage")
	fs.StringVar(&o.Lang, "lang", o.Lang, "interface language: en or ru")
	fs.StringVar(&o.LogLevel, "l", o.LogLevel, "log level")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "request timeout")
	fs.StringVar(&o.Config, "config", o.Config, "path to config file")
	fs.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
	fs.StringVar(&o.EnvFile, "env-file", o.EnvFile, "path to .env file")
}

// ParseClient parses args (without the program name) into ClientOptions.
func ParseClient(args []string) (*ClientOptions, error) {
	o := defaultClient()
	bind := func(fs *flag.FlagSet) { bindClient(fs, o) }
	if err := parse("client", args, bind, &o.Config, &o.EnvFile, o); err != nil {
		return nil, err
	}

	applyEnv([]envVar{
		{"COURSEKEEPER_SERVER", &o.ServerURL},
		{"COURSEKEEPER_STORAGE", &o.StoragePath},
		{"COURSEKEEPER_REDIS", &o.RedisAddr},
		{"COURSEKEEPER_CA", &o.CAPath},
		{"COURSEKEEPER_CATALOG", &o.CatalogPath},
		{"COURSEKEEPER_PREREQUISITES", &o.Prerequisites},
		{"COURSEKEEPER_LANG", &o.Lang},
		{"LOG_LEVEL", &o.LogLevel},
	})
	return o, nil
}

// parse applies flags, then the config file, then the flags again so that
// explicit flags win over file values.
func parse(name string, args []string, bind func(*flag.FlagSet), configPath, envFile *string, target any) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := loadDotenv(*envFile); err != nil {
		return err
	}
	if p := os.Getenv("CONFIG"); p != "" {
		*configPath = p
	}

	loaded, err := loadFile(*configPath, target)
	if err != nil {
		return err
	}
	if !loaded {
		return nil
	}

	again := flag.NewFlagSet(name, flag.ContinueOnError)
	again.SetOutput(io.Discard)
	bind(again)
	return again.Parse(args)
}

func loadFile(path string, target any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("error while parsing config file: %w", err)
	}
	return true, nil
}

// loadDotenv exports variables from path without overriding the environment.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(vars []envVar) {
	for _, v := range vars {
		if val := os.Getenv(v.key); val != "" {
			*v.dst = val
		}
	}
}
