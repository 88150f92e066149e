package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Headers that describe backend-to-bridge framing and must not reach the client.
var transportHeaders = []string{"Transfer-Encoding", "Content-Encoding"}

// How a streamed relay ended.
const (
	endMarker       = "marker"
	endEOF          = "eof"
	endClientGone   = "client_gone"
	endBackendError = "backend_error"
)

const defaultChunkSize = 1024

// copyHeaders replaces dst's values with src's for every key except the
// transport headers and any extra keys given.
func copyHeaders(dst, src http.Header, drop ...string) {
	skip := make(map[string]bool, len(transportHeaders)+len(drop))
	for _, k := range transportHeaders {
		skip[http.CanonicalHeaderKey(k)] = true
	}
	for _, k := range drop {
		skip[http.CanonicalHeaderKey(k)] = true
	}
	for k, vv := range src {
		if skip[http.CanonicalHeaderKey(k)] {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}

// readBody reads and releases a buffered backend response.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	return body, nil
}

// writeBuffered sends a complete backend body with the backend's headers.
func writeBuffered(w http.ResponseWriter, header http.Header, status int, body []byte) {
	copyHeaders(w.Header(), header)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("client went away before response was written", "error", err)
	}
}

type streamResult struct {
	Reason string
	Bytes  int64
	Err    error
}

// relayStream copies a streaming backend response to the client chunk by
// chunk, flushing each one. It stops after the chunk that completes a
// terminal marker. relayStream owns resp.Body and closes it on every path.
func relayStream(ctx context.Context, w http.ResponseWriter, resp *http.Response, chunkSize int, markers []string) streamResult {
	defer resp.Body.Close()

	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	// the stream may be cut at the marker, so a backend length no longer holds
	copyHeaders(w.Header(), resp.Header, "Content-Length")
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	scanner := newMarkerScanner(markers)
	buf := make([]byte, chunkSize)
	var res streamResult

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				res.Reason = endClientGone
				res.Err = werr
				return res
			}
			res.Bytes += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
			if scanner.Scan(buf[:n]) {
				res.Reason = endMarker
				return res
			}
		}
		if err == io.EOF {
			res.Reason = endEOF
			return res
		}
		if err != nil {
			res.Err = err
			if ctx.Err() != nil {
				res.Reason = endClientGone
			} else {
				res.Reason = endBackendError
			}
			return res
		}
	}
}
