package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/phsym/console-slog"
	"go.bug.st/serial"

	"github.com/esplink/espat/transport"
	"github.com/esplink/espat/uart"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to the ESP8266 module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("host", "192.168.0.235", "IPv4 address of the MQTT broker")
	flag.String("port", "1883", "TCP port of the MQTT broker")
	flag.String("client-id", "esplink-1", "MQTT client identifier")
	flag.String("topic", "esplink/echo", "Topic for the publish/subscribe demo loop")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-format", "json", "Log format (json, console)")
	flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	configFile := os.Getenv("CONFIG_FILE")
	if f := flag.Lookup("config"); f != nil && f.Value.String() != "" {
		configFile = f.Value.String()
	}

	config, err := LoadConfig(WithDefaults(), WithFile(configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(config)

	tr, err := transport.New(transport.Config{
		Opener: uart.PortOpener{
			PortName: config.SerialPort,
			Mode:     &serial.Mode{BaudRate: config.BaudRate},
		},
		Logger: logger.With("component", "transport"),
	})
	if err != nil {
		logger.Error("Failed to create transport", "error", err)
		os.Exit(1)
	}

	logger.Info("Bringing the ESP8266 link up",
		"serial_port", config.SerialPort, "host", config.TargetHost, "port", config.TargetPort)
	if st := tr.Connect(fmt.Sprintf("%q", config.TargetHost), config.TargetPort); st != transport.Success {
		logger.Error("ESP8266 link failed", "status", st.String())
		os.Exit(1)
	}

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + net.JoinHostPort(config.TargetHost, config.TargetPort)).
		SetClientID(config.ClientID).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(false).
		SetCustomOpenConnectionFn(func(_ *url.URL, _ mqtt.ClientOptions) (net.Conn, error) {
			// The ESP8266 already holds the TCP socket; hand paho the link.
			return tr.NetConn(), nil
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("MQTT connect failed", "error", token.Error())
		tr.Disconnect()
		os.Exit(1)
	}
	logger.Info("MQTT session established", "client_id", config.ClientID)

	// Subscribe with exponential backoff. Retry policy lives here, above the
	// transport: the transport itself is best-effort by contract.
	backoff := time.Second
	for {
		token := client.Subscribe(config.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			logger.Info("Message received", "topic", msg.Topic(), "payload", string(msg.Payload()))
		})
		if token.Wait() && token.Error() == nil {
			break
		}
		logger.Warn("Subscribe failed, retrying", "topic", config.Topic, "backoff", backoff, "error", token.Error())
		time.Sleep(backoff)
		if backoff *= 2; backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	logger.Info("Subscribed", "topic", config.Topic)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ticker.C:
			payload := fmt.Sprintf("up %s", time.Since(start).Round(time.Second))
			if token := client.Publish(config.Topic, 0, false, payload); token.Wait() && token.Error() != nil {
				logger.Warn("Publish failed", "error", token.Error())
			}
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", "signal", sig)
			client.Disconnect(250)
			logger.Info("Closing the ESP8266 link")
			tr.Disconnect()
			return
		}
	}
}

func newLogger(config *Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if config.LogFormat == "console" {
		handler = console.NewHandler(os.Stderr, &console.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}
