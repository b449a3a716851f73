package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var version = "dev"

// settings is the config file layout. Every key can also be set with a
// PUPPETVIEW_ environment variable or the matching flag.
type settings struct {
	Library          string          `yaml:"library" mapstructure:"library"`
	Capabilities     []string        `yaml:"capabilities" mapstructure:"capabilities"`
	WASI             bool            `yaml:"wasi" mapstructure:"wasi"`
	MemoryLimitPages uint32          `yaml:"memory_limit_pages" mapstructure:"memory_limit_pages"`
	LogLevel         string          `yaml:"log_level" mapstructure:"log_level"`
	Output           string          `yaml:"output" mapstructure:"output"`
	Frames           int             `yaml:"frames" mapstructure:"frames"`
	FPS              int             `yaml:"fps" mapstructure:"fps"`
	Listen           string          `yaml:"listen" mapstructure:"listen"`
	Tracing          tracingSettings `yaml:"tracing" mapstructure:"tracing"`
}

type tracingSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capabilities", []string{"render"})
	v.SetDefault("log_level", "info")
	v.SetDefault("output", "table")
	v.SetDefault("frames", 60)
	v.SetDefault("fps", 30)
	v.SetDefault("listen", ":9464")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.insecure", true)
}

func loadSettings(v *viper.Viper) (settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("parse config: %w", err)
	}
	return s, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the puppetview config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(viper.GetViper())
		if err != nil {
			return err
		}
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(s)
	},
}

var configForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	v := viper.New()
	setDefaults(v)
	s, err := loadSettings(v)
	if err != nil {
		return err
	}
	if err := writeSettings(path, s, configForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func writeSettings(path string, s settings, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
