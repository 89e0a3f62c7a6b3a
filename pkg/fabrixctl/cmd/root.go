package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/config"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
}

type runtimeState struct {
	configPath         string
	cfg                *config.Config
	contextOverride    string
	outputFormat       string
	controllerOverride string
	environmentFlag    string
	appFlag            string
	nonInteractive     bool
	verbose            bool
	writer             io.Writer
	logger             *zap.Logger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{configPath: cfg.ConfigPath, writer: cfg.OutputWriter}

	root := &cobra.Command{
		Use:   "fabrixctl",
		Short: "AI Fabrix controller CLI",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.contextOverride == "" {
				rt.contextOverride = os.Getenv("FABRIXCTL_CONTEXT")
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("FABRIXCTL_OUTPUT")
			}
			if rt.controllerOverride == "" {
				rt.controllerOverride = os.Getenv("FABRIXCTL_CONTROLLER")
			}
			if !rt.nonInteractive {
				rt.nonInteractive = strings.EqualFold(os.Getenv("FABRIXCTL_NON_INTERACTIVE"), "true")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("FABRIXCTL_VERBOSE"), "true")
			}

			// Commands that work without a config file.
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			// A controller given on the command line is enough to operate
			// without a config file; the resolver falls back to stored
			// tokens for everything else.
			if rt.controllerOverride != "" {
				rt.cfg = &config.Config{Version: config.VersionV1}
				return nil
			}

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				if os.IsNotExist(err) {
					rt.cfg = &config.Config{Version: config.VersionV1}
					return nil
				}
				return err
			}
			rt.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.contextOverride, "context", "c", "", "Context name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&rt.controllerOverride, "controller", "", "Controller URL override")
	root.PersistentFlags().StringVar(&rt.environmentFlag, "environment", "", "Target environment override")
	root.PersistentFlags().StringVar(&rt.appFlag, "app", "", "Application name override")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Fail instead of prompting")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose output")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewAuthCommand(),
		NewSecretsCommand(),
		NewAppsCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "table"
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

// Logger builds the CLI logger once: development output on stderr when
// verbose, otherwise silent.
func (rt *runtimeState) Logger() *zap.Logger {
	if rt.logger != nil {
		return rt.logger
	}
	if rt.verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		if logger, err := cfg.Build(); err == nil {
			rt.logger = logger
			return rt.logger
		}
	}
	rt.logger = zap.NewNop()
	return rt.logger
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

// ResolveContext returns the selected context, or nil when the CLI is
// operating purely from overrides.
func (rt *runtimeState) ResolveContext() (*config.Context, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveContextName()
	if name == "" {
		if rt.controllerOverride != "" {
			return nil, nil
		}
		return nil, errors.New("no context configured; run 'fabrixctl config init'")
	}
	return rt.cfg.FindContext(name)
}

func (rt *runtimeState) resolveController(ctx *config.Context) string {
	if rt.controllerOverride != "" {
		return rt.controllerOverride
	}
	if ctx != nil {
		return ctx.Controller
	}
	return ""
}

func (rt *runtimeState) resolveEnvironment(ctx *config.Context) string {
	if rt.environmentFlag != "" {
		return rt.environmentFlag
	}
	if ctx != nil {
		return ctx.Environment
	}
	return os.Getenv("FABRIXCTL_ENVIRONMENT")
}

func (rt *runtimeState) resolveApp(ctx *config.Context) string {
	if rt.appFlag != "" {
		return rt.appFlag
	}
	if ctx != nil {
		return ctx.App
	}
	return os.Getenv("FABRIXCTL_APP")
}
