package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/auth"
	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/client"
	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/config"
	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/secrets"
)

// authComponents bundles the token store, refresher, and resolver that every
// authenticated command shares.
type authComponents struct {
	store     auth.TokenStore
	refresher *auth.TokenRefresher
	resolver  *auth.AuthResolver
}

func buildAuthComponents(rt *runtimeState) *authComponents {
	logger := rt.Logger()
	store := auth.NewFileTokenStore(config.DefaultTokenPath())
	refresher := auth.NewTokenRefresher(store, nil, logger)
	loader := secrets.NewKeyringLoader(logger)
	resolver := auth.NewAuthResolver(store, refresher, loader, logger)
	return &authComponents{store: store, refresher: refresher, resolver: resolver}
}

func buildClient(cmdCtx context.Context, rt *runtimeState) (*client.Client, error) {
	if err := rt.EnsureConfigLoaded(); err != nil {
		return nil, err
	}
	ctxCfg, err := rt.ResolveContext()
	if err != nil {
		return nil, err
	}
	controller := rt.resolveController(ctxCfg)

	components := buildAuthComponents(rt)
	authCfg, err := components.resolver.Resolve(cmdCtx, controller, rt.resolveEnvironment(ctxCfg), rt.resolveApp(ctxCfg))
	if err != nil {
		return nil, err
	}
	// With no explicit controller the resolver may have found a token for
	// any stored one; talk to that controller.
	if controller == "" {
		controller = authCfg.Controller
	}
	if controller == "" {
		return nil, errors.New("controller URL is required")
	}

	options := []client.Option{
		client.WithController(controller),
		client.WithAuth(*authCfg),
		client.WithRefresher(components.refresher),
		client.WithUserAgent("fabrixctl"),
		client.WithLogger(rt.Logger()),
	}
	if rt.cfg != nil && rt.cfg.Settings.Timeout != "" {
		if timeout, parseErr := time.ParseDuration(rt.cfg.Settings.Timeout); parseErr == nil {
			options = append(options, client.WithTimeout(timeout))
		}
	}
	if ctxCfg != nil {
		options = append(options, client.WithTLSConfig(ctxCfg.CAFile, ctxCfg.InsecureSkipTLSVerify))
	}
	if rt.verbose {
		options = append(options, client.WithVerbose(func(format string, args ...any) {
			_, _ = fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
		}))
	}
	return client.New(options...)
}
