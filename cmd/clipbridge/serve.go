package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hostclip/clipbridge/internal/bridge"
	"github.com/hostclip/clipbridge/internal/frontend"
	"github.com/hostclip/clipbridge/internal/hostlink"
	"github.com/hostclip/clipbridge/internal/ipc"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the guest clipboard bridge daemon",
		Long: `Starts the clipboard bridge inside the guest: it watches the X11
CLIPBOARD selection, announces its contents to the host, and serves X11
conversion requests from the host clipboard.

With --host-addr the daemon keeps a connection to the hypervisor-side
clipboard service. Without it the daemon runs standalone and the
copy/paste CLI tools act as the host through the IPC socket.

Without a DISPLAY (or with --headless) the bridge stays inert: all
operations succeed silently and reads report no data.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServe(v) },
	}

	f := cmd.Flags()
	f.String("host-addr", "", "hypervisor clipboard service address (host:port or unix:/path); empty = standalone")
	f.String("token", "", "shared secret for the host link (empty = no encryption)")
	f.Bool("tls", false, "wrap the host link in TLS (self-signed, passphrase-verified)")
	f.Bool("grab", false, "poll the current X11 selection owner at startup")
	f.Bool("headless", false, "force headless mode even if DISPLAY is set")
	f.String("source", defaultSource(), "name for this guest in host logs")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(v *viper.Viper) error {
	setupLogging(v)

	hostAddr := v.GetString("host-addr")
	headless := v.GetBool("headless") || os.Getenv("DISPLAY") == ""
	source := v.GetString("source")

	slog.Info("clipbridge starting",
		"version", Version,
		"headless", headless,
		"host_link", hostAddr != "",
	)

	co := frontend.New(source, Version, headless)
	b := bridge.New(co, headless)
	co.Attach(b)

	var link *hostlink.Link
	if hostAddr != "" {
		var err error
		link, err = hostlink.New(hostlink.Config{
			Addr:    hostAddr,
			Token:   v.GetString("token"),
			UseTLS:  v.GetBool("tls"),
			Source:  source,
			Version: Version,
		}, co)
		if err != nil {
			return fmt.Errorf("host link: %w", err)
		}
		co.SetLink(link)
		go link.Run()
	}

	if err := b.Start(v.GetBool("grab")); err != nil {
		return fmt.Errorf("starting clipboard bridge: %w", err)
	}

	ipcLn, err := ipc.Listen()
	if err != nil {
		slog.Warn("IPC socket unavailable", "err", err)
	} else {
		slog.Info("IPC socket listening", "path", ipc.SocketPath())
		go co.ServeIPC(ipcLn)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Info("shutting down", "signal", s)

	if ipcLn != nil {
		ipcLn.Close()
	}
	if link != nil {
		link.Close()
	}
	if err := b.Stop(); err != nil {
		return fmt.Errorf("stopping clipboard bridge: %w", err)
	}
	return nil
}
