package main

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	wayfare "github.com/wayfarelabs/wayfare/clients/go/wayfare"
)

// Config represents the CLI configuration stored in ~/.wayfare/config.toml.
// Session credentials live in the sealed keystore next to it, never here.
type Config struct {
	Default ConfigDefault `toml:"default"`
}

// ConfigDefault holds general settings.
type ConfigDefault struct {
	BaseURL string `toml:"base_url"`
}

// configDir returns the path to ~/.wayfare, creating it if needed.
func configDir() (string, error) {
	if dir := os.Getenv("WAYFARE_CONFIG"); dir != "" {
		return dir, os.MkdirAll(dir, 0o700)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".wayfare")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}
	return cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// newClient builds an API client from the stored configuration.
func newClient() (*wayfare.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return wayfare.NewClient(cfg.Default.BaseURL), nil
}

// requireSession builds the client and fails early if nobody is signed in.
func requireSession() (*wayfare.Client, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	if client.Token == "" {
		return nil, &wayfare.AuthError{Reason: "not signed in, run 'wayfare login' first"}
	}
	return client, nil
}

var rootCmd = &cobra.Command{
	Use:          "wayfare",
	Short:        "Wayfare travel diary and chat",
	Long:         "Command-line client for the Wayfare travel diary: keep your logs, chat with other travellers, and watch who is online.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetURLCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Wayfare configuration",
	Long:  "View or modify the CLI configuration stored in ~/.wayfare/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No configuration file found. Run 'wayfare config set-url <url>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetURLCmd = &cobra.Command{
	Use:   "set-url <url>",
	Short: "Set the server base URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Default.BaseURL = args[0]
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Set default.base_url = %s\n", args[0])
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
