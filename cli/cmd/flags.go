// Package cmd provides CLI commands for the billsync binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// ConfigFlag points at a billsync.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./billsync.yaml when present)",
		EnvVars: []string{"BILLSYNC_CONFIG"},
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (sync, history inspect, history stats)",
	}
)

// OutputFlags returns the shared output flags.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// HistoryFlags returns the flags for commands that read sync history.
func HistoryFlags() []cli.Flag {
	return append([]cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "history-backend",
			Usage: "History storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "history-path",
			Usage: "History storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "history-s3-region",
			Usage: "AWS region for the S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "history-s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "history-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}, OutputFlags()...)
}
