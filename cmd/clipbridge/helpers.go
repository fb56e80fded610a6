package main

import (
	"fmt"
	"os"

	"github.com/hostclip/clipbridge/internal/ipc"
	"github.com/hostclip/clipbridge/internal/message"
	"github.com/hostclip/clipbridge/internal/wire"
)

// defaultSource returns a human-readable identifier for this guest.
func defaultSource() string {
	if v := os.Getenv("CLIPBRIDGE_SOURCE"); v != "" {
		return v
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// daemonRoundTrip sends one request to the local daemon over the IPC
// socket and returns the reply.
func daemonRoundTrip(req *message.Message) (*message.Message, error) {
	if !ipc.IsRunning() {
		return nil, fmt.Errorf("no clipbridge daemon on %s (is \"clipbridge serve\" running?)", ipc.SocketPath())
	}
	conn, err := ipc.Dial()
	if err != nil {
		return nil, fmt.Errorf("dialing daemon: %w", err)
	}
	wc := wire.New(conn, nil)
	defer wc.Close()

	if err := wc.WriteMsg(req); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	reply, err := wc.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}
	if reply.Type == message.TypeError {
		return nil, fmt.Errorf("daemon: %s", reply.Error)
	}
	return reply, nil
}
