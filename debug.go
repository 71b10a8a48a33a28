//go:build linux

package wayland

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gogpu/wayland/protocol"
)

// Wire tracing in the WAYLAND_DEBUG=1 format: one line per message on
// stderr, requests marked with an arrow. The format is fixed because
// users diff it against traces from other client implementations.

func printOutgoing(ifaceName string, id uint32, msgName string, args []Arg, child ObjectID) {
	fmt.Fprintf(os.Stderr, "[%s]  -> %s@%d.%s(%s)\n",
		traceTimestamp(), ifaceName, id, msgName, formatArgs(args, child))
}

func printIncoming(ifaceName string, id uint32, msgName string, args []Arg) {
	fmt.Fprintf(os.Stderr, "[%s] %s@%d.%s(%s)\n",
		traceTimestamp(), ifaceName, id, msgName, formatArgs(args, ObjectID{}))
}

// traceTimestamp renders milliseconds-with-microseconds since an
// arbitrary origin, the way libwayland stamps its traces.
func traceTimestamp() string {
	now := time.Now().UnixMicro()
	return fmt.Sprintf("%7d.%03d", now/1000, now%1000)
}

// formatArgs renders an argument list for the trace. child substitutes
// for a placeholder new-id on the send path, where the argument itself
// still carries id 0.
func formatArgs(args []Arg, child ObjectID) string {
	var sb strings.Builder
	for i, arg := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch arg.Kind {
		case protocol.Int:
			fmt.Fprintf(&sb, "%d", arg.Int)
		case protocol.Uint:
			fmt.Fprintf(&sb, "%d", arg.Uint)
		case protocol.Fixed:
			fmt.Fprintf(&sb, "%f", arg.Fixed.Float())
		case protocol.String:
			fmt.Fprintf(&sb, "%q", arg.Str)
		case protocol.Object:
			if arg.Object.IsNull() {
				sb.WriteString("nil")
			} else {
				sb.WriteString(arg.Object.String())
			}
		case protocol.NewID:
			sb.WriteString("new id ")
			if !child.IsNull() {
				sb.WriteString(child.String())
			} else {
				sb.WriteString(arg.Object.String())
			}
		case protocol.Array:
			fmt.Fprintf(&sb, "array[%d]", len(arg.Array))
		case protocol.Fd:
			fmt.Fprintf(&sb, "fd %d", arg.Fd)
		}
	}
	return sb.String()
}
