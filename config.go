package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration
type Config struct {
	// SerialPort is the path to the ESP8266's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the module (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// TargetHost is the IPv4 address of the MQTT broker the module connects to
	TargetHost string `yaml:"target_host"`
	// TargetPort is the broker's TCP port
	TargetPort string `yaml:"target_port"`
	// ClientID identifies this daemon to the broker
	ClientID string `yaml:"client_id"`
	// Topic is the topic the demo loop publishes and subscribes on
	Topic string `yaml:"topic"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// LogFormat selects the log handler ("json" or "console")
	LogFormat string `yaml:"log_format"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.TargetHost = "192.168.0.235"
		c.TargetPort = "1883"
		c.ClientID = "esplink-1"
		c.Topic = "esplink/echo"
		c.LogLevel = "info"
		c.LogFormat = "json"
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if port := os.Getenv("SERIAL_PORT"); port != "" {
			c.SerialPort = port
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if host := os.Getenv("TARGET_HOST"); host != "" {
			c.TargetHost = host
		}

		if port := os.Getenv("TARGET_PORT"); port != "" {
			c.TargetPort = port
		}

		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.ClientID = id
		}

		if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
			c.Topic = topic
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if format := os.Getenv("LOG_FORMAT"); format != "" {
			c.LogFormat = format
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "host":
				c.TargetHost = f.Value.String()
			case "port":
				c.TargetPort = f.Value.String()
			case "client-id":
				c.ClientID = f.Value.String()
			case "topic":
				c.Topic = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "log-format":
				c.LogFormat = f.Value.String()
			}
		})
		return nil
	}
}
