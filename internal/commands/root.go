// Package commands wires the cobra command tree: install drives the
// Resolver and Refresh Engine against the current project, validate runs
// the Tree Validator against it. The command grammar itself is out of scope
// (spec §1); this package exists only to give the pipeline an entry point in
// the teacher's own idiom.
//
// Grounded on the teacher's internal/commands/root.go: a package-level
// rootCmd, subcommands registered from init(), and an Execute entry point
// the binary's main() calls into.
package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "ndpkg <command> [<args>]",
	Version: "0.1.0",
	Short:   "ndpkg installs packages from a registry-based module ecosystem",
}

// Exit codes (spec §7): 0 success, 1 issues or task failures were reported,
// 2 an I/O or protocol error stopped the run before it could finish.
const (
	ExitSuccess = 0
	ExitIssues  = 1
	ExitError   = 2
)

// Execute runs the selected subcommand and returns the process exit code.
// A subcommand's RunE sets exitCode itself before returning (since a failed
// run can mean either "issues reported" or "error", which cobra's own
// err-or-not result can't distinguish); a cobra-level failure that never
// reached a RunE — an unknown command or flag — leaves exitCode at its
// ExitSuccess default, so that case is mapped to ExitError here instead.
func Execute() int {
	exitCode = ExitSuccess
	if err := rootCmd.Execute(); err != nil && exitCode == ExitSuccess {
		exitCode = ExitError
	}
	return exitCode
}

var exitCode = ExitSuccess

func init() {
	rootCmd.SetVersionTemplate(`{{printf "%s" .Version}}
`)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(validateCmd)
}
