package symbols

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/coa-dev/codesearch/internal/cserr"
)

// Extractor produces symbol extractions for source files.
// The engine treats extraction as an external concern; implementations
// bridge to whatever process does the parsing.
type Extractor interface {
	// ExtractBulk extracts symbols for the given files in one run.
	// A file the extractor cannot parse is simply absent from the result.
	ExtractBulk(ctx context.Context, files []string) ([]*FileExtraction, error)
}

// CommandExtractor invokes an external extractor process. File paths go in
// as JSON lines on stdin; FileExtraction records come back as JSON lines on
// stdout. A missing or failing extractor degrades search rather than
// breaking it.
type CommandExtractor struct {
	Argv    []string
	Timeout time.Duration
}

// NewCommandExtractor creates an extractor bridge for the configured argv.
// Returns nil when argv is empty (symbol enrichment disabled).
func NewCommandExtractor(argv []string, timeout time.Duration) *CommandExtractor {
	if len(argv) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandExtractor{Argv: argv, Timeout: timeout}
}

// ExtractBulk implements Extractor.
func (e *CommandExtractor) ExtractBulk(ctx context.Context, files []string) ([]*FileExtraction, error) {
	if len(files) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var stdin bytes.Buffer
	enc := json.NewEncoder(&stdin)
	for _, f := range files {
		if err := enc.Encode(map[string]string{"file_path": f}); err != nil {
			return nil, fmt.Errorf("failed to encode extractor request: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, e.Argv[0], e.Argv[1:]...)
	cmd.Stdin = &stdin

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, cserr.Wrap(cserr.ErrCodeCancelled, ctx.Err())
		}
		return nil, cserr.New(cserr.ErrCodeSymbolStoreUnavailable,
			fmt.Sprintf("symbol extractor failed: %v", err), err).
			WithDetail("command", e.Argv[0])
	}

	var results []*FileExtraction
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ex FileExtraction
		if err := json.Unmarshal(line, &ex); err != nil {
			// One malformed record never aborts the bulk run.
			slog.Warn("skipping malformed extractor record",
				slog.String("error", err.Error()))
			continue
		}
		results = append(results, &ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extractor output: %w", err)
	}

	return results, nil
}
