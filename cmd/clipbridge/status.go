package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostclip/clipbridge/internal/clipfmt"
	"github.com/hostclip/clipbridge/internal/message"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the running daemon",
		Args:  cobra.NoArgs,
		RunE:  func(_ *cobra.Command, _ []string) error { return runStatus() },
	}
}

func runStatus() error {
	reply, err := daemonRoundTrip(&message.Message{Type: message.TypeStatus})
	if err != nil {
		return err
	}
	st := reply.Status
	if st == nil {
		return fmt.Errorf("daemon sent no status")
	}

	fmt.Printf("clipbridge %s on %s\n", st.Version, st.Source)
	if st.Headless {
		fmt.Println("mode:         headless (no X server)")
	} else {
		fmt.Println("mode:         X11")
	}
	fmt.Printf("host link:    %s\n", st.HostLink)
	fmt.Printf("host offers:  %s\n", formatNames(clipfmt.HostFormat(st.HostFormats)))
	fmt.Printf("X11 offers:   %s\n", formatNames(clipfmt.HostFormat(st.X11Formats)))
	return nil
}

func formatNames(f clipfmt.HostFormat) string {
	if f == 0 {
		return "(none)"
	}
	out := ""
	add := func(s string) {
		if out != "" {
			out += ", "
		}
		out += s
	}
	if f&clipfmt.HostFormatText != 0 {
		add("text")
	}
	if f&clipfmt.HostFormatBitmap != 0 {
		add("bitmap")
	}
	if f&clipfmt.HostFormatHTML != 0 {
		add("html")
	}
	return out
}
