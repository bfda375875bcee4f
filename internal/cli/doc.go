// Package cli implements the fleet command-line interface.
//
// Each command is a cobra.Command whose RunE builds an app (config, pool,
// router, file service, discovery) for the single invocation, does its
// work through those packages, and closes the pool on the way out.
//
// # Command Structure
//
//	fleet read|ls|tree|find|grep|logs <path>   - File inspection
//	fleet exec <command>                       - Run an allow-listed command
//	fleet cp|diff <[host:]path> <[host:]path>  - Cross-host transfer and compare
//	fleet resolve <project>                    - Find the host that has a project
//	fleet hosts [--check] / hosts import       - List, probe and import hosts
//	fleet pool-stats [command]                 - Exercise and report the pool
//	fleet config show|path                     - Effective configuration
//
// # Targets
//
// --host names a host from fleet.yaml directly. --project names a compose
// project; without --host every host is asked for it and exactly one must
// have it. Relative paths are joined to the project directory. With a
// single configured host neither flag is needed.
//
// # Output
//
// --json wraps every result in a JSONEnvelope on stdout, and errors in the
// same envelope with a stable code from ErrorToJSON. Human output uses
// lipgloss styles, switched off by --no-color, NO_COLOR, or a non-terminal
// stdout. Live resolve progress only runs when stdin and stdout are both
// terminals.
package cli
