package gateway

import "bytes"

// markerScanner detects a terminal event marker in a byte stream fed chunk
// by chunk. It only remembers the last len(longest marker)-1 bytes, enough
// to catch a marker split across a chunk boundary.
type markerScanner struct {
	markers [][]byte
	tail    []byte
	keep    int
}

func newMarkerScanner(markers []string) *markerScanner {
	s := &markerScanner{}
	for _, m := range markers {
		if m == "" {
			continue
		}
		s.markers = append(s.markers, []byte(m))
		if len(m)-1 > s.keep {
			s.keep = len(m) - 1
		}
	}
	return s
}

// Scan reports whether a marker ends within chunk.
func (s *markerScanner) Scan(chunk []byte) bool {
	if len(s.markers) == 0 {
		return false
	}
	window := append(s.tail, chunk...)
	for _, m := range s.markers {
		if bytes.Contains(window, m) {
			return true
		}
	}
	if len(window) > s.keep {
		window = window[len(window)-s.keep:]
	}
	s.tail = append(s.tail[:0], window...)
	return false
}
