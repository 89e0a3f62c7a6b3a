package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/config"
	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fabrixctl configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigUseContextCommand(),
		newConfigSetContextCommand(),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			cfg := config.DefaultConfig()
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Config written to %s\n", path)
			return nil
		},
	}
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the active configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			format := output.Format(rt.OutputFormat())
			if format == output.FormatTable {
				format = output.FormatYAML
			}
			return output.WriteObject(rt.Writer(), format, rt.cfg)
		},
	}
}

func newConfigUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context <name>",
		Short: "Select the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if _, err := rt.cfg.FindContext(args[0]); err != nil {
				return err
			}
			rt.cfg.CurrentContext = args[0]
			if err := config.Save(rt.configPath, rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Switched to context %s\n", args[0])
			return nil
		},
	}
}

func newConfigSetContextCommand() *cobra.Command {
	var controller string
	var environment string
	var app string
	var scope string

	cmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			updated := false
			for i := range rt.cfg.Contexts {
				if rt.cfg.Contexts[i].Name == name {
					applyContextFlags(&rt.cfg.Contexts[i], controller, environment, app, scope)
					updated = true
					break
				}
			}
			if !updated {
				ctx := config.Context{Name: name}
				applyContextFlags(&ctx, controller, environment, app, scope)
				rt.cfg.Contexts = append(rt.cfg.Contexts, ctx)
			}
			if rt.cfg.CurrentContext == "" {
				rt.cfg.CurrentContext = name
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(rt.configPath, rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Context %s saved\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&controller, "controller-url", "", "Controller URL")
	cmd.Flags().StringVar(&environment, "env", "", "Environment name")
	cmd.Flags().StringVar(&app, "app-name", "", "Application name")
	cmd.Flags().StringVar(&scope, "scope", "", "Scope requested at login")
	return cmd
}

func applyContextFlags(ctx *config.Context, controller, environment, app, scope string) {
	if controller != "" {
		ctx.Controller = controller
	}
	if environment != "" {
		ctx.Environment = environment
	}
	if app != "" {
		ctx.App = app
	}
	if scope != "" {
		ctx.Scope = scope
	}
}
