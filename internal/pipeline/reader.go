package pipeline

import (
	"bytes"
	"fmt"
	"os"
)

// binarySniffLen is how many leading bytes the binary detector inspects.
const binarySniffLen = 8192

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadResult is a normalized file read.
type ReadResult struct {
	Content string

	// LineEnding is the detected line ending: "\r\n" when any CRLF appears
	// in the sniffed leading bytes, else "\n". It is metadata only; content
	// keeps its original endings.
	LineEnding string

	// Binary marks a file the pipeline skips.
	Binary bool
}

// ReadFile reads and normalizes one file: binary detection by null-byte
// scan, UTF-8 BOM stripping, line-ending detection.
func ReadFile(path string) (*ReadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return &ReadResult{Binary: true}, nil
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	ending := "\n"
	if bytes.Contains(sniff, []byte("\r\n")) {
		ending = "\r\n"
	}

	return &ReadResult{
		Content:    string(data),
		LineEnding: ending,
	}, nil
}
