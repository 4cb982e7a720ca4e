// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	HTTP     HTTPConfig     `yaml:"http"`
	Hub      HubConfig      `yaml:"hub"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Type           string        `yaml:"type"` // "postgres", "sqlite" или "inmemory"
	URL            string        `yaml:"url"`
	SQLitePath     string        `yaml:"sqlite_path"`
	MaxConnections int32         `yaml:"max_connections"`
	MinConnections int32         `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	Migrate        bool          `yaml:"migrate"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type HTTPConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      int           `yaml:"rate_limit"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	EnableMCP      bool          `yaml:"enable_mcp"`
}

type HubConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type WorkerConfig struct {
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Type:           "sqlite",
			SQLitePath:     "data/chat.db",
			MaxConnections: 10,
			MinConnections: 2,
			IdleTimeout:    5 * time.Minute,
			Migrate:        true,
		},
		HTTP: HTTPConfig{
			RequestTimeout: 30 * time.Second,
			RateLimit:      600,
			CORSOrigins:    []string{"http://localhost:5173", "http://localhost:3000"},
			EnableMCP:      true,
		},
		Hub: HubConfig{
			SendBuffer:     64,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 64 * 1024,
		},
		Worker: WorkerConfig{
			ResyncInterval: time.Minute,
		},
	}
}

// Load читает config.yml (или файл из --config / CHAT_CONFIG) и накладывает
// переменные окружения CHAT_<SECTION>_<KEY>.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("chat-tracker", pflag.ContinueOnError)
	flags.String("config", DefaultPath, "путь к config.yml")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("разбор флагов: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindPFlag("config", flags.Lookup("config")); err != nil {
		return nil, fmt.Errorf("привязка флага config: %w", err)
	}
	if err := v.BindEnv("config"); err != nil {
		return nil, fmt.Errorf("привязка CHAT_CONFIG: %w", err)
	}

	path := v.GetString("config")
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		// без файла по умолчанию работаем на дефолтах
		if !(errors.Is(err, fs.ErrNotExist) && path == DefaultPath) {
			return nil, err
		}
	}

	if err := applyEnv(v, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("не могу открыть %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("ошибка парсинга %s: %w", path, err)
	}
	return nil
}

func applyEnv(v *viper.Viper, cfg *Config) error {
	stringKeys := map[string]*string{
		"server.host":          &cfg.Server.Host,
		"server.port":          &cfg.Server.Port,
		"database.type":        &cfg.Database.Type,
		"database.url":         &cfg.Database.URL,
		"database.sqlite_path": &cfg.Database.SQLitePath,
	}
	for key, target := range stringKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = v.GetString(key)
		}
	}

	boolKeys := map[string]*bool{
		"logging.development": &cfg.Logging.Development,
		"database.migrate":    &cfg.Database.Migrate,
		"http.enable_mcp":     &cfg.HTTP.EnableMCP,
	}
	for key, target := range boolKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = v.GetBool(key)
		}
	}

	durationKeys := map[string]*time.Duration{
		"server.shutdown_timeout": &cfg.Server.ShutdownTimeout,
		"database.idle_timeout":   &cfg.Database.IdleTimeout,
		"http.request_timeout":    &cfg.HTTP.RequestTimeout,
		"hub.write_timeout":       &cfg.Hub.WriteTimeout,
		"hub.ping_interval":       &cfg.Hub.PingInterval,
		"worker.resync_interval":  &cfg.Worker.ResyncInterval,
	}
	for key, target := range durationKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = v.GetDuration(key)
		}
	}

	intKeys := map[string]*int{
		"http.rate_limit": &cfg.HTTP.RateLimit,
		"hub.send_buffer": &cfg.Hub.SendBuffer,
	}
	for key, target := range intKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = v.GetInt(key)
		}
	}

	connKeys := map[string]*int32{
		"database.max_connections": &cfg.Database.MaxConnections,
		"database.min_connections": &cfg.Database.MinConnections,
	}
	for key, target := range connKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = v.GetInt32(key)
		}
	}

	if err := v.BindEnv("hub.max_message_size"); err != nil {
		return fmt.Errorf("привязка hub.max_message_size: %w", err)
	}
	if v.IsSet("hub.max_message_size") {
		cfg.Hub.MaxMessageSize = v.GetInt64("hub.max_message_size")
	}

	// списки в окружении через запятую: CHAT_HTTP_CORS_ORIGINS=http://a,http://b
	listKeys := map[string]*[]string{
		"http.cors_origins":   &cfg.HTTP.CORSOrigins,
		"hub.allowed_origins": &cfg.Hub.AllowedOrigins,
	}
	for key, target := range listKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("привязка %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = splitList(v.GetString(key))
		}
	}
	return nil
}

func splitList(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url обязателен для postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path обязателен для sqlite")
		}
	case "inmemory":
	default:
		return fmt.Errorf("неизвестный database.type %q", c.Database.Type)
	}
	if c.Hub.SendBuffer <= 0 {
		return errors.New("hub.send_buffer должен быть больше 0")
	}
	return nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
