package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/hostclip/clipbridge/internal/cliperr"
	"github.com/hostclip/clipbridge/internal/message"
	"github.com/hostclip/clipbridge/internal/wire"
)

const pasteTimeout = 15 * time.Second

// ServeIPC accepts CLI connections on the local socket until the
// listener closes. The IPC channel is unencrypted; the socket is
// owner-restricted by the OS.
func (c *Coordinator) ServeIPC(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go c.serveIPCConn(conn)
	}
}

func (c *Coordinator) serveIPCConn(conn net.Conn) {
	wc := wire.New(conn, nil)
	defer wc.Close()
	for {
		msg, err := wc.ReadMsg()
		if err != nil {
			return
		}
		var reply *message.Message
		switch msg.Type {
		case message.TypeCopy:
			reply = c.handleCopy(msg)
		case message.TypePaste:
			reply = c.handlePaste()
		case message.TypeStatus:
			reply = &message.Message{Type: message.TypeStatusResponse, Status: c.Status()}
		case message.TypePing:
			reply = &message.Message{Type: message.TypePong}
		default:
			reply = &message.Message{Type: message.TypeError, Error: "unsupported request"}
		}
		if err := wc.WriteMsg(reply); err != nil {
			slog.Debug("IPC write failed", "err", err)
			return
		}
	}
}

func (c *Coordinator) handleCopy(msg *message.Message) *message.Message {
	data, err := msg.DecodePayload()
	if err == nil {
		err = c.Copy(string(data))
	}
	return &message.Message{Type: message.TypeData, Result: cliperr.Code(err)}
}

func (c *Coordinator) handlePaste() *message.Message {
	ctx, cancel := context.WithTimeout(context.Background(), pasteTimeout)
	defer cancel()
	text, err := c.Paste(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = cliperr.ErrTimeout
	}
	reply := &message.Message{Type: message.TypeData, Result: cliperr.Code(err)}
	if err == nil {
		reply.Payload = message.NewPayload([]byte(text))
	}
	return reply
}
