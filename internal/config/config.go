package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Sessions SessionConfig  `yaml:"sessions"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	OAuth    OAuthConfig    `yaml:"oauth"`
}

type HTTPConfig struct {
	Address     string        `yaml:"address" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// StorageConfig selects the backend that owns users and refresh tokens.
type StorageConfig struct {
	Backend string `yaml:"backend" env-default:"sqlite"` // sqlite | mongo
	Path    string `yaml:"path" env:"STORAGE_PATH"`
}

type AuthConfig struct {
	Secret          string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-default:"30m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	MinPasswordLen  int           `yaml:"min_password_len" env-default:"6"`
	BcryptCost      int           `yaml:"bcrypt_cost" env-default:"10"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env-default:"1h"`
}

type SessionConfig struct {
	Backend       string        `yaml:"backend" env-default:"sqlite"` // sqlite | file | memory | redis
	TTL           time.Duration `yaml:"ttl" env-default:"24h"`
	Dir           string        `yaml:"dir" env-default:"sessions"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1h"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env-default:"authd"`
}

type RedisConfig struct {
	Address string `yaml:"address" env-default:"localhost:6379"`
	DB      int    `yaml:"db" env-default:"0"`
}

// OAuthConfig describes the external identity provider consumed by oauthd.
type OAuthConfig struct {
	AuthURL      string        `yaml:"auth_url"`
	TokenURL     string        `yaml:"token_url"`
	UserInfoURL  string        `yaml:"user_info_url"`
	ClientID     string        `yaml:"client_id" env:"OAUTH_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"OAUTH_CLIENT_SECRET"`
	RedirectURI  string        `yaml:"redirect_uri"`
	StateTTL     time.Duration `yaml:"state_ttl" env-default:"10m"`
}

// MustLoad reads the config path from the -config flag or CONFIG_PATH and
// panics on any failure. Configuration is built once at startup and passed
// by reference; nothing reads ambient state afterwards.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty: use -config or CONFIG_PATH")
	}
	return LoadConfig(path)
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
