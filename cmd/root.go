// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rooftop/pkg/config"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	busBackend string
	logLevel   string
)

var (
	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rooftop",
	Short: "Roll-off roof observatory gateway",
	Long: `Rooftop - device drivers and serial bridge for a roll-off roof observatory.

The driver commands speak the XML device protocol on stdin/stdout and talk to
the roof controller through a message bus. The bridge relays bus commands to
the pico microcontroller as 4-byte serial frames and writes its replies back
to bus keys.

Connection modes:
  Serial:    --port /dev/serial0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the ROOFTOP_PASSWORD
environment variable, or prompted interactively when the command does not use
stdin. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&busBackend, "bus", "", "Bus backend: redis, mqtt or memory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig resolves the configuration from file, environment and flags,
// in increasing order of precedence
func loadConfig(cmd *cobra.Command, args []string) error {
	c, loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	c.ApplyEnv(os.Getenv)

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Serial.Port = portName
	}
	if flags.Changed("baud") {
		c.Serial.Baud = baudRate
	}
	if flags.Changed("bus") {
		c.Bus.Backend = busBackend
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := config.SetupLogger(c.Log)
	if err != nil {
		return err
	}

	cfg, log = c, l
	if loaded {
		log.WithField("path", configPath).Debug("Loaded configuration")
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
