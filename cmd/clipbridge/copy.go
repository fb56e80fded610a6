package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/message"
)

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy [text]",
		Short: "Copy text to the bridged clipboard (like pbcopy)",
		Long: `Places text on the host side of a running clipbridge daemon, which
announces it to X11. The text is taken from the arguments, or from
stdin when none are given.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error { return runCopy(args) },
	}
}

func runCopy(args []string) error {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	reply, err := daemonRoundTrip(&message.Message{
		Type:    message.TypeCopy,
		Payload: message.NewPayload([]byte(text)),
	})
	if err != nil {
		return err
	}
	if err := cliperr.FromCode(reply.Result); err != nil {
		return err
	}
	return nil
}
