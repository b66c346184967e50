// Package edit implements structured line-level file editing and
// search-and-replace. It does not re-index the files it changes; callers do.
package edit

import (
	"fmt"
	"os"
	"strings"

	"github.com/coa-dev/codesearch/internal/cserr"
)

// Operation is a line edit operation.
type Operation string

const (
	OpInsert  Operation = "insert"
	OpReplace Operation = "replace"
	OpDelete  Operation = "delete"
)

// ParseOperation validates an operation string.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpInsert, OpReplace, OpDelete:
		return Operation(s), nil
	default:
		return "", cserr.New(cserr.ErrCodeInvalidInput,
			fmt.Sprintf("unknown edit operation %q", s), nil).
			WithSuggestion("use insert, replace, or delete")
	}
}

// EditResult reports a completed line edit.
type EditResult struct {
	FilePath  string `json:"file_path"`
	Operation string `json:"operation"`
	Line      int    `json:"line"`
	LineCount int    `json:"line_count"`
}

// EditLines applies one operation at a 1-based line number.
//   - insert places content before the given line; line == count+1 appends.
//   - replace swaps the line's text for content.
//   - delete removes the line; content is ignored.
func EditLines(filePath string, op Operation, line int, content string) (*EditResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}
	if info.Mode().Perm()&0o200 == 0 {
		return nil, readOnlyErr(filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}

	text, ending, trailingNewline := normalize(string(data))
	lines := strings.Split(text, "\n")

	maxLine := len(lines)
	if op == OpInsert {
		maxLine++
	}
	if line < 1 || line > maxLine {
		return nil, cserr.New(cserr.ErrCodeLineOutOfRange,
			fmt.Sprintf("line %d out of range (file has %d lines)", line, len(lines)), nil).
			WithDetail("file", filePath)
	}

	switch op {
	case OpInsert:
		inserted := strings.Split(content, "\n")
		lines = append(lines[:line-1], append(inserted, lines[line-1:]...)...)
	case OpReplace:
		replacement := strings.Split(content, "\n")
		lines = append(lines[:line-1], append(replacement, lines[line:]...)...)
	case OpDelete:
		lines = append(lines[:line-1], lines[line:]...)
	default:
		return nil, cserr.New(cserr.ErrCodeInvalidInput, fmt.Sprintf("unknown operation %q", op), nil)
	}

	out := strings.Join(lines, ending)
	if trailingNewline {
		out += ending
	}

	if err := os.WriteFile(filePath, []byte(out), info.Mode().Perm()); err != nil {
		return nil, cserr.Wrap(cserr.ErrCodeFileIO, err)
	}

	return &EditResult{
		FilePath:  filePath,
		Operation: string(op),
		Line:      line,
		LineCount: len(lines),
	}, nil
}

// normalize splits content handling CRLF: returns LF-joined text, the
// original ending, and whether the file ended with a newline.
func normalize(content string) (text, ending string, trailingNewline bool) {
	ending = "\n"
	if strings.Contains(content, "\r\n") {
		ending = "\r\n"
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}
	if strings.HasSuffix(content, "\n") {
		trailingNewline = true
		content = strings.TrimSuffix(content, "\n")
	}
	return content, ending, trailingNewline
}

func readOnlyErr(filePath string) *cserr.Error {
	return cserr.New(cserr.ErrCodeReadOnlyFile,
		fmt.Sprintf("file is read-only: %s", filePath), nil).
		WithDetail("file", filePath)
}
