// Package config loads the shared service configuration from an optional
// YAML file, applying environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway struct {
		Addr    string `yaml:"addr"`
		LogFile string `yaml:"log_file"`
	} `yaml:"gateway"`
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Scylla struct {
		Hosts    []string `yaml:"hosts"`
		Keyspace string   `yaml:"keyspace"`
	} `yaml:"scylla"`
}

func defaults() *Config {
	c := &Config{}
	c.Gateway.Addr = ":8080"
	c.API.Addr = ":8081"
	c.Kafka.Brokers = []string{"localhost:19092"}
	c.Kafka.Topic = "chat-events"
	c.Redis.Addr = "localhost:6379"
	c.Scylla.Hosts = []string{"localhost:9042"}
	c.Scylla.Keyspace = "chat"
	return c
}

// Load reads the YAML file at path if it exists (an empty path or missing
// file is fine) and then applies environment overrides.
func Load(path string) (*Config, error) {
	c := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	c.applyEnvOverrides()
	return c, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		c.Gateway.Addr = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SCYLLA_HOSTS"); v != "" {
		c.Scylla.Hosts = strings.Split(v, ",")
	}
	if v := os.Getenv("SCYLLA_KEYSPACE"); v != "" {
		c.Scylla.Keyspace = v
	}
}
