package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/client"
	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/output"
)

func NewAppsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage applications on the controller",
	}
	cmd.AddCommand(
		newAppsListCommand(),
		newAppsDeployCommand(),
		newAppsDeploymentsCommand(),
	)
	return cmd
}

func newAppsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			c, err := buildClient(cmd.Context(), rt)
			if err != nil {
				return err
			}
			ctxCfg, _ := rt.ResolveContext()
			apps, err := c.Apps().List(cmd.Context(), client.AppListOptions{
				Environment: rt.resolveEnvironment(ctxCfg),
			})
			if err != nil {
				return err
			}
			format := output.Format(rt.OutputFormat())
			if format == output.FormatTable {
				output.WriteAppTable(rt.Writer(), apps)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, apps)
		},
	}
}

func newAppsDeployCommand() *cobra.Command {
	var version string
	var wait bool

	cmd := &cobra.Command{
		Use:   "deploy <app>",
		Short: "Deploy an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			c, err := buildClient(cmd.Context(), rt)
			if err != nil {
				return err
			}
			ctxCfg, _ := rt.ResolveContext()
			deployment, err := c.Apps().Deploy(cmd.Context(), args[0], client.DeployRequest{
				Environment: rt.resolveEnvironment(ctxCfg),
				Version:     version,
				Wait:        wait,
			})
			if err != nil {
				return err
			}
			format := output.Format(rt.OutputFormat())
			if format == output.FormatTable {
				_, _ = fmt.Fprintf(rt.Writer(), "Deployment %s for %s: %s\n", deployment.ID, deployment.AppName, deployment.Status)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, deployment)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Version to deploy")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the deployment to complete")
	return cmd
}

func newAppsDeploymentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deployments <app>",
		Short: "List deployments for an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			c, err := buildClient(cmd.Context(), rt)
			if err != nil {
				return err
			}
			deployments, err := c.Apps().Deployments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			format := output.Format(rt.OutputFormat())
			if format == output.FormatTable {
				output.WriteDeploymentTable(rt.Writer(), deployments)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, deployments)
		},
	}
}
