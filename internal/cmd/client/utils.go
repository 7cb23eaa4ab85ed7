package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/rzbill/pageq/internal/origin"
	"github.com/rzbill/pageq/internal/processor"
	"github.com/rzbill/pageq/internal/runtime"
	"github.com/spf13/cobra"
)

// OpenFunc opens the runtime a command operates on. Commands close it.
type OpenFunc func(cmd *cobra.Command) (*runtime.Runtime, error)

// withRuntime opens the runtime, runs fn and closes it.
func withRuntime(cmd *cobra.Command, open OpenFunc, fn func(*runtime.Runtime) error) (err error) {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(rt)
}

// originFlag reads the required --origin flag.
func originFlag(cmd *cobra.Command) (origin.ID, error) {
	s, _ := cmd.Flags().GetString("origin")
	if s == "" {
		return 0, fmt.Errorf("--origin is required")
	}
	return origin.Parse(s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodedMessage describes a stored message: its required weight when it
// carries a marker, then the body as payload_text or payload_b64.
func decodedMessage(seq uint64, msg []byte) map[string]any {
	out := map[string]any{"seq": seq, "size": len(msg)}
	body := msg
	if w, ok := processor.RequiredWeight(msg); ok {
		out["weight"] = w.RefTime
		body = msg[processor.MarkerLen:]
	}
	if utf8.Valid(body) {
		out["payload_text"] = string(body)
	} else {
		out["payload_b64"] = base64.StdEncoding.EncodeToString(body)
	}
	return out
}

// messageBodies turns --data values into message bodies. With raw unset each
// body is prefixed with a weight marker for w.
func messageBodies(data []string, b64, raw bool, w uint32) ([][]byte, error) {
	out := make([][]byte, 0, len(data))
	for _, d := range data {
		body := []byte(d)
		if b64 {
			dec, err := base64.StdEncoding.DecodeString(d)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 --data: %w", err)
			}
			body = dec
		}
		if !raw {
			body = processor.EncodeMarker(w, body)
		}
		out = append(out, body)
	}
	return out, nil
}
