package agent

import (
	"bytes"
	"strings"
)

// LineSplitter turns arbitrary read chunks into complete lines. Bytes after
// the last newline are held until more data arrives or Flush is called, so
// a multi-byte UTF-8 sequence split across reads is never cut in half.
type LineSplitter struct {
	pending []byte
}

// Write appends a chunk and returns the complete lines it finished,
// without their line terminators.
func (s *LineSplitter) Write(chunk []byte) []string {
	s.pending = append(s.pending, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(s.pending[:i]), "\r")
		lines = append(lines, line)
		s.pending = s.pending[i+1:]
	}

	// Reclaim the backing array once it has been consumed.
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return lines
}

// Flush returns the trailing fragment, if any, and resets the splitter.
func (s *LineSplitter) Flush() (string, bool) {
	if len(s.pending) == 0 {
		return "", false
	}
	rest := strings.TrimSuffix(string(s.pending), "\r")
	s.pending = nil
	return rest, true
}
