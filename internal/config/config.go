package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App    AppConfig    `yaml:"app"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Orders OrdersConfig `yaml:"orders"`
	AMQP   AMQPConfig   `yaml:"amqp"`
}

type AppConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type OrdersConfig struct {
	NumberPrefix     string  `yaml:"number_prefix"`
	SequenceWidth    int     `yaml:"sequence_width"`
	DailyMax         int64   `yaml:"daily_max"`
	MaxRetries       int     `yaml:"max_retries"`
	TaxRate          float64 `yaml:"tax_rate"`
	ShippingFee      float64 `yaml:"shipping_fee"`
	FreeShippingOver float64 `yaml:"free_shipping_over"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Load reads the optional YAML file at path, then applies .env and
// environment overrides on top. MONGO_URI is the only hard requirement.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	if v := os.Getenv("APP_PORT"); v != "" {
		cfg.App.Port = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}
	if v := os.Getenv("AMQP_EXCHANGE"); v != "" {
		cfg.AMQP.Exchange = v
	}
	if v := os.Getenv("ORDER_NUMBER_PREFIX"); v != "" {
		cfg.Orders.NumberPrefix = v
	}
	if v := os.Getenv("ORDER_DAILY_MAX"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid ORDER_DAILY_MAX %q: %w", v, err)
		}
		cfg.Orders.DailyMax = n
	}

	if cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("config: MONGO_URI is required")
	}
	if cfg.Mongo.Database == "" {
		return nil, fmt.Errorf("config: mongo database name is required")
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Port = "8080"
	cfg.App.ShutdownTimeout = 5 * time.Second
	cfg.Mongo.Database = "storefront"
	cfg.Mongo.ConnectTimeout = 10 * time.Second
	cfg.Orders.NumberPrefix = "ORD"
	cfg.Orders.SequenceWidth = 5
	cfg.Orders.DailyMax = 99999
	cfg.Orders.MaxRetries = 3
	cfg.Orders.TaxRate = 0.10
	cfg.Orders.ShippingFee = 10.00
	cfg.Orders.FreeShippingOver = 100.00
	cfg.AMQP.Exchange = "storefront.events"
	return cfg
}
