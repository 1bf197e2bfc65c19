package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/agentwire/internal/config"
)

func init() {
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	RunE:  runConfig,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

// printable mirrors config.Config with the token masked.
type printable struct {
	Server struct {
		URL        string `yaml:"url"`
		HistoryURL string `yaml:"history_url"`
		Token      string `yaml:"token"`
	} `yaml:"server"`
	Cache struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path,omitempty"`
	} `yaml:"cache"`
	Debug struct {
		Log string `yaml:"log,omitempty"`
	} `yaml:"debug"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var p printable
	p.Server.URL = cfg.Server.URL
	p.Server.HistoryURL = cfg.Server.HistoryURL
	p.Server.Token = maskToken(cfg.Server.Token)
	p.Cache.Enabled = cfg.Cache.Enabled
	p.Cache.Path = cfg.Cache.Path
	p.Debug.Log = cfg.Debug.Log

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(p)
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
