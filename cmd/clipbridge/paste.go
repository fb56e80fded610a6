package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/message"
)

func newPasteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paste",
		Short: "Print the X11 clipboard through the bridge (like pbpaste)",
		Args:  cobra.NoArgs,
		RunE:  func(_ *cobra.Command, _ []string) error { return runPaste() },
	}
}

func runPaste() error {
	reply, err := daemonRoundTrip(&message.Message{Type: message.TypePaste})
	if err != nil {
		return err
	}
	if err := cliperr.FromCode(reply.Result); err != nil {
		if errors.Is(err, cliperr.ErrNoData) {
			return nil // empty clipboard, empty output
		}
		return err
	}
	data, err := reply.DecodePayload()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(os.Stdout, string(data))
	return err
}
