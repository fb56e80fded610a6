package bridge

import "github.com/hostclip/clipbridge/internal/clipfmt"

// Format is the host clipboard format bitmask.
type Format = clipfmt.HostFormat

const (
	// FormatText is UTF-16LE code units with CRLF line endings and a
	// terminating NUL, the only format the bridge converts today.
	FormatText = clipfmt.HostFormatText
	// FormatBitmap and FormatHTML are tracked but never chosen.
	FormatBitmap = clipfmt.HostFormatBitmap
	FormatHTML   = clipfmt.HostFormatHTML
)

// Frontend is the upstream side of the bridge: whatever speaks the host
// clipboard protocol. HostClipboardData and CompleteRequest are invoked
// on the bridge's event loop goroutine and must not call back into the
// Bridge; ReportFormats may be delivered from the loop goroutine too.
type Frontend interface {
	// HostClipboardData fetches the host clipboard contents in the
	// given format, synchronously.
	HostClipboardData(f Format) ([]byte, error)

	// ReportFormats tells the host which formats the X11 side offers
	// now. A zero mask means X11 holds nothing the bridge understands.
	ReportFormats(f Format)

	// CompleteRequest finishes a prior Bridge.RequestData call. cookie
	// is the caller's token, echoed back. data is owned by the bridge
	// and only valid for the duration of the call; implementations
	// copy what they keep. err is nil or one of the cliperr kinds.
	CompleteRequest(cookie any, data []byte, err error)
}
