package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ndpkg/ndpkg/internal/cachestore"
	"github.com/ndpkg/ndpkg/internal/manifest"
	"github.com/ndpkg/ndpkg/internal/ndconfig"
	"github.com/ndpkg/ndpkg/internal/ndpath"
	"github.com/ndpkg/ndpkg/internal/refresh"
	"github.com/ndpkg/ndpkg/internal/registry"
	"github.com/ndpkg/ndpkg/internal/resolve"
)

// alias so we can mock in tests
var osGetwd = os.Getwd

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "resolve and install the dependencies of the package.json in the current directory",
	RunE:  runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := ndconfig.Load()
	if err != nil {
		exitCode = ExitError
		return err
	}

	cwd, err := cwdAbsolutePath()
	if err != nil {
		exitCode = ExitError
		return err
	}

	root, err := manifest.Load(cwd)
	if err != nil {
		exitCode = ExitError
		return err
	}

	regClient := registry.New(cfg.Registry, cfg.Logger)

	ctx := context.Background()
	tasks, err := resolve.Resolve(ctx, root, regClient)
	if err != nil {
		exitCode = ExitError
		return err
	}

	store, err := cachestore.New(ndpath.AbsolutePath(cfg.CacheDir))
	if err != nil {
		exitCode = ExitError
		return err
	}

	engine := refresh.New(store, regClient.HTTP, refresh.Options{
		Concurrency: cfg.Concurrency,
		Logger:      cfg.Logger,
	})

	errs := engine.Run(ctx, cwd, tasks)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		exitCode = ExitIssues
		return fmt.Errorf("%d package(s) failed to install", len(errs))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "installed %d package(s)\n", len(tasks))
	exitCode = ExitSuccess
	return nil
}

func cwdAbsolutePath() (ndpath.AbsolutePath, error) {
	dir, err := osGetwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return ndpath.AbsolutePath(dir), nil
}
