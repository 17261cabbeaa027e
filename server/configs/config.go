package configs

import (
	"encoding/json"
	"fmt"
	"log" // Standard log for initial messages before custom logger is configured
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/archive"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// Config holds the application configuration.
type Config struct {
	Server struct {
		Host                 string `json:"host" validate:"required"`
		TCPPort              int    `json:"tcpPort" validate:"min=0,max=65535"`
		HTTPPort             int    `json:"httpPort" validate:"min=0,max=65535"` // admin, metrics and WebSocket peers; 0 disables
		LogLevel             string `json:"logLevel" validate:"oneof=DEBUG INFO WARN WARNING ERROR FATAL"`
		TickIntervalMs       int    `json:"tickIntervalMs" validate:"min=1,max=1000"`
		MaxMessagesPerSecond int    `json:"maxMessagesPerSecond" validate:"min=0"`
	} `json:"server"`
	Game struct {
		DataDir string `json:"dataDir" validate:"required"`
		Script  string `json:"script"` // Lua win conditions; empty means no winner is ever declared
	} `json:"game"`
	Database struct {
		PostgresURL string `json:"postgresUrl"`
	} `json:"database"`
	Redis struct {
		Address  string `json:"address"`
		Password string `json:"password"`
		DB       int    `json:"db" validate:"min=0,max=15"`
	} `json:"redis"`
}

var (
	once   sync.Once
	config *Config
	err    error

	validate = validator.New()
)

// LoadConfig loads the configuration from a file (e.g., config.json).
// It's designed to be called once.
func LoadConfig(filePath string) (*Config, error) {
	once.Do(func() {
		log.Printf("Loading configuration from %s", filePath)
		file, fileErr := os.ReadFile(filePath)
		if fileErr != nil {
			err = fileErr
			log.Printf("Error reading config file %s: %v", filePath, err)
			return
		}
		config, err = Parse(file)
		if err != nil {
			log.Printf("Invalid config file %s: %v", filePath, err)
			return
		}
		log.Println("Configuration loaded successfully.")
	})
	return config, err
}

// Parse decodes data over the default values and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	setDefaultValues(cfg)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the loaded configuration.
// It will exit the process if LoadConfig has not been called successfully.
func GetConfig() *Config {
	if config == nil || err != nil {
		utils.LogFatalf("Configuration not loaded or loaded with error. Call LoadConfig first. Error: %v", err)
	}
	return config
}

// TCPAddr is the listen address of the game TCP listener.
func (c *Config) TCPAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.TCPPort))
}

// HTTPAddr is the listen address of the HTTP server.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// TickInterval is the match loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Server.TickIntervalMs) * time.Millisecond
}

// ArchiveEnabled reports whether finished matches should be persisted.
func (c *Config) ArchiveEnabled() bool {
	return c.Database.PostgresURL != ""
}

// RedisConfig returns the archive cache settings.
func (c *Config) RedisConfig() archive.RedisConfig {
	return archive.RedisConfig{Addr: c.Redis.Address, Password: c.Redis.Password, DB: c.Redis.DB}
}

// setDefaultValues sets default configuration values.
func setDefaultValues(cfg *Config) {
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.TCPPort = 5000
	cfg.Server.HTTPPort = 8081
	cfg.Server.LogLevel = "INFO"
	cfg.Server.TickIntervalMs = 50
	cfg.Server.MaxMessagesPerSecond = 30
	cfg.Game.DataDir = "server/data"
	cfg.Game.Script = "server/data/rules.lua"
}

// CreateExampleConfigFile creates an example config.json if it doesn't exist.
func CreateExampleConfigFile(filePath string) {
	if _, statErr := os.Stat(filePath); os.IsNotExist(statErr) {
		log.Printf("Creating example config file at %s", filePath)
		exampleCfg := &Config{}
		setDefaultValues(exampleCfg)

		// Archiving stays off until these are pointed at real services.
		exampleCfg.Database.PostgresURL = ""
		exampleCfg.Redis.Address = "localhost:6379"

		data, marshalErr := json.MarshalIndent(exampleCfg, "", "  ")
		if marshalErr != nil {
			log.Printf("Error marshalling example config: %v", marshalErr)
			return
		}

		if writeErr := os.WriteFile(filePath, data, 0644); writeErr != nil {
			log.Printf("Error writing example config file %s: %v", filePath, writeErr)
		} else {
			log.Printf("Example config file created: %s. Please review and update it.", filePath)
		}
	} else {
		log.Printf("Config file %s already exists. Skipping creation of example.", filePath)
	}
}
