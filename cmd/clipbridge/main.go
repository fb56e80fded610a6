// clipbridge: bidirectional clipboard bridge between a virtual machine
// host clipboard channel and the X Window System selections.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hostclip/clipbridge/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipbridge",
		Short: "Bridge a VM host clipboard to X11 selections",
		Long: `clipbridge makes a virtual machine's host clipboard and the X11
selections (CLIPBOARD and PRIMARY) appear unified: text copied on one
side becomes available for paste on the other.

Run "clipbridge serve" inside the guest. With --host-addr it connects
to the hypervisor-side clipboard service ("clipbridge host" is a stub
implementation of that service for testing); without it the daemon runs
standalone and the copy/paste/status CLI tools play the host role over
the local IPC socket.

Config file: the path supplied via --config; without it, the first
found of:
  /etc/clipbridge/clipbridge.toml
  $HOME/.config/clipbridge/clipbridge.toml

All flags can be set via CLIPBRIDGE_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newHostCmd(),
		newCopyCmd(),
		newPasteCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipbridge %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	if interactive && format == logging.FormatAuto {
		format = logging.FormatText
	}
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
