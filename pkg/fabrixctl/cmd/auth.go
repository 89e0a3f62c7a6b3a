package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/auth"
	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/secrets"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the controller",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthStatusCommand(),
		newAuthTokenCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var clientCredentials bool
	var scope string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login via device code or client credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			controller := rt.resolveController(ctxCfg)
			if controller == "" {
				return errors.New("controller URL is required; set a context or pass --controller")
			}
			environment := rt.resolveEnvironment(ctxCfg)
			if scope == "" && ctxCfg != nil {
				scope = ctxCfg.Scope
			}

			components := buildAuthComponents(rt)
			if clientCredentials {
				return clientCredentialsLogin(cmd.Context(), rt, components, controller, environment)
			}
			return deviceLogin(cmd.Context(), rt, components, controller, environment, scope)
		},
	}

	cmd.Flags().BoolVar(&clientCredentials, "client-credentials", false, "Exchange stored client credentials instead of the interactive device flow")
	cmd.Flags().StringVar(&scope, "scope", "", "Scope to request")
	return cmd
}

func deviceLogin(ctx context.Context, rt *runtimeState, components *authComponents, controller, environment, scope string) error {
	dc := auth.NewDeviceCodeClient(nil, rt.Logger())
	authz, err := dc.Initiate(ctx, controller, environment, scope)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(rt.Writer(), "Visit %s and enter code: %s\n", authz.VerificationURI, authz.UserCode)

	onPoll := func(int) {}
	if rt.nonInteractive {
		onPoll = func(attempt int) {
			_, _ = fmt.Fprintf(os.Stderr, "waiting for approval (attempt %d)\n", attempt)
		}
	} else {
		s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " waiting for approval..."
		s.Start()
		defer s.Stop()
		onPoll = func(attempt int) {
			s.Suffix = fmt.Sprintf(" waiting for approval (attempt %d)", attempt)
		}
	}

	grant, err := dc.Poll(ctx, controller, authz.DeviceCode, authz.Interval, authz.ExpiresIn, onPoll)
	if err != nil {
		return err
	}
	rec := auth.DeviceTokenRecord{
		ControllerURL: controller,
		AccessToken:   grant.AccessToken,
		RefreshToken:  grant.RefreshToken,
		ExpiresAt:     time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second),
	}
	if err := components.store.SaveDeviceToken(rec); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(rt.Writer(), "Authenticated. Token expires at %s\n", rec.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

func clientCredentialsLogin(ctx context.Context, rt *runtimeState, components *authComponents, controller, environment string) error {
	ctxCfg, _ := rt.ResolveContext()
	appName := rt.resolveApp(ctxCfg)
	if appName == "" {
		return errors.New("app name is required for client-credentials login")
	}
	if environment == "" {
		return errors.New("environment is required for client-credentials login")
	}
	loader := secrets.NewKeyringLoader(rt.Logger())
	creds, err := loader.Load(appName)
	if err != nil {
		return err
	}
	if creds == nil {
		return fmt.Errorf("no credentials found for %s; run 'fabrixctl secrets set %s'", appName, appName)
	}
	rec, err := components.refresher.RefreshClient(ctx, environment, appName, controller, *creds)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(rt.Writer(), "Authenticated as %s. Token expires at %s\n", appName, rec.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			controller := rt.resolveController(ctxCfg)
			components := buildAuthComponents(rt)

			if controller != "" {
				rec, ok, err := components.store.GetDeviceToken(controller)
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(rt.Writer(), "Not authenticated")
					return nil
				}
				printTokenStatus(rt, rec)
				return nil
			}

			urls, err := components.store.DeviceTokenURLs()
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				_, _ = fmt.Fprintln(rt.Writer(), "Not authenticated")
				return nil
			}
			for _, u := range urls {
				rec, ok, err := components.store.GetDeviceToken(u)
				if err != nil || !ok {
					continue
				}
				printTokenStatus(rt, rec)
			}
			return nil
		},
	}
}

func printTokenStatus(rt *runtimeState, rec *auth.DeviceTokenRecord) {
	state := "valid"
	now := time.Now()
	switch {
	case auth.IsExpired(now, rec.ExpiresAt):
		state = "expired"
	case auth.NeedsProactiveRefresh(now, rec.ExpiresAt):
		state = "expiring soon"
	}
	subject := subjectFromToken(rec.AccessToken)
	if subject != "" {
		_, _ = fmt.Fprintf(rt.Writer(), "%s: %s as %s, expires %s\n", rec.ControllerURL, state, subject, rec.ExpiresAt.UTC().Format(time.RFC3339))
		return
	}
	_, _ = fmt.Fprintf(rt.Writer(), "%s: %s, expires %s\n", rec.ControllerURL, state, rec.ExpiresAt.UTC().Format(time.RFC3339))
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print an access token for the current context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			components := buildAuthComponents(rt)
			authCfg, err := components.resolver.Resolve(cmd.Context(),
				rt.resolveController(ctxCfg), rt.resolveEnvironment(ctxCfg), rt.resolveApp(ctxCfg))
			if err != nil {
				return err
			}
			if authCfg.Type != auth.AuthTypeBearer {
				return errors.New("no bearer token available; only raw client credentials resolved")
			}
			_, _ = fmt.Fprintln(rt.Writer(), authCfg.Token)
			return nil
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored device token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			controller := rt.resolveController(ctxCfg)
			if controller == "" {
				return errors.New("controller URL is required")
			}
			components := buildAuthComponents(rt)
			if err := components.store.DeleteDeviceToken(controller); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}
