// Command puppetview loads Inochi2D puppets through the WASM build of the
// native library and steps, inspects or serves them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/engine"
	"github.com/Thog/inochi2d-go/metrics"
	"github.com/Thog/inochi2d-go/runtime"
	"github.com/Thog/inochi2d-go/tracing"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "puppetview",
	Short: "Load and step Inochi2D puppets",
	Long: `puppetview drives a WebAssembly build of Inochi2D. It loads puppet files,
runs frames against them and reports what the native library did.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.puppetview/config.yaml)")
	flags.String("library", "", "path to the Inochi2D WASM build")
	flags.StringSlice("caps", nil, "capabilities to enable: render, diagnostics, puppet-name")
	flags.Bool("wasi", false, "provide WASI preview1 to the native build")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("output", "table", "output format: table or json")

	_ = viper.BindPFlag("library", flags.Lookup("library"))
	_ = viper.BindPFlag("capabilities", flags.Lookup("caps"))
	_ = viper.BindPFlag("wasi", flags.Lookup("wasi"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("output", flags.Lookup("output"))

	setDefaults(viper.GetViper())
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := configDir(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PUPPETVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env still apply.
	_ = viper.ReadInConfig()
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".puppetview"), nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// session is everything a command needs to talk to the native library.
type session struct {
	inst      *runtime.Instance
	collector *metrics.Collector
	tracer    *tracing.Provider
	log       *zap.Logger
	settings  settings
}

func openSession(ctx context.Context) (*session, error) {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if s.Library == "" {
		return nil, errors.New("no native library configured (use --library or PUPPETVIEW_LIBRARY)")
	}
	caps, err := parseCapabilities(s.Capabilities)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(s.LogLevel)
	if err != nil {
		return nil, err
	}
	engine.SetLogger(log.Named("engine"))

	wasm, err := os.ReadFile(s.Library)
	if err != nil {
		return nil, fmt.Errorf("read native library: %w", err)
	}

	tp, err := tracing.New(ctx, tracing.Config{
		ServiceName:    "puppetview",
		ServiceVersion: version,
		OTLPEndpoint:   s.Tracing.Endpoint,
		Insecure:       s.Tracing.Insecure,
		Enabled:        s.Tracing.Enabled,
	}, log)
	if err != nil {
		return nil, err
	}

	lib, err := engine.NewWazeroLibrary(ctx, wasm, &engine.Config{
		EnableWASI:       s.WASI,
		MemoryLimitPages: s.MemoryLimitPages,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	collector := metrics.NewCollector(nil)
	inst, err := runtime.New(ctx, lib,
		runtime.WithCapabilities(caps),
		runtime.WithLogger(log.Named("runtime")),
		runtime.WithTracer(tp.Tracer()),
		runtime.WithObserver(collector),
	)
	if err != nil {
		_ = lib.Close(ctx)
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	log.Debug("session opened",
		zap.String("library", s.Library),
		zap.Stringer("capabilities", caps),
	)
	return &session{
		inst:      inst,
		collector: collector,
		tracer:    tp,
		log:       log,
		settings:  s,
	}, nil
}

func (s *session) Close(ctx context.Context) error {
	err := s.inst.Close(ctx)
	err = multierr.Append(err, s.tracer.Shutdown(ctx))
	_ = s.log.Sync()
	return err
}

// parseCapabilities maps capability names to flags.
func parseCapabilities(names []string) (inochi2d.Capabilities, error) {
	var caps inochi2d.Capabilities
	for _, name := range names {
		c, ok := inochi2d.ParseCapability(name)
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", name)
		}
		caps |= c
	}
	return caps, nil
}
