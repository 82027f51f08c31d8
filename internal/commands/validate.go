package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ndpkg/ndpkg/internal/depgraph"
	"github.com/ndpkg/ndpkg/internal/manifest"
	"github.com/ndpkg/ndpkg/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "check that the installed node_modules tree matches package-lock.json",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cwd, err := cwdAbsolutePath()
	if err != nil {
		exitCode = ExitError
		return err
	}

	lockfile, err := manifest.LoadLockfile(cwd)
	if err != nil {
		exitCode = ExitError
		return err
	}

	tree, err := depgraph.Load(cwd)
	if err != nil {
		exitCode = ExitError
		return err
	}

	issues, err := validate.Validate(tree, lockfile)
	if err != nil {
		exitCode = ExitError
		return err
	}

	if len(issues) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "node_modules matches package-lock.json")
		exitCode = ExitSuccess
		return nil
	}

	for _, issue := range issues {
		fmt.Fprintln(cmd.OutOrStdout(), describeIssue(issue))
	}
	exitCode = ExitIssues
	return fmt.Errorf("%d issue(s) found", len(issues))
}

func describeIssue(issue validate.Issue) string {
	switch i := issue.(type) {
	case validate.PackageNotInstalled:
		return fmt.Sprintf("not installed: %s", i.Package)
	case validate.WrongVersionInstalled:
		return fmt.Sprintf("wrong version installed: %s (want %s, have %s)", i.Package, i.Expected, i.Actual)
	case validate.MissingPackageFromLock:
		return fmt.Sprintf("missing from package-lock.json: %s", i.Package)
	default:
		return fmt.Sprintf("unrecognized issue: %v", issue)
	}
}
