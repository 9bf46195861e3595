package buffer

import (
	"context"
	"strings"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

// readListRows drains a pipe-delimited Redis list into typed rows via parse,
// counting lines parse rejects as malformed rather than aborting the drain.
func readListRows[Row any](ctx context.Context, client *stagingstore.Client, tempKey string, parse func(line string) (Row, bool)) (int, []Row, int, error) {
	lines, err := client.LRange(ctx, tempKey, 0, -1)
	if err != nil {
		return 0, nil, 0, err
	}

	rows := make([]Row, 0, len(lines))
	malformed := 0

	for _, line := range lines {
		row, ok := parse(line)
		if !ok {
			malformed++
			continue
		}

		rows = append(rows, row)
	}

	return len(lines), rows, malformed, nil
}

// appendToList pushes line onto key and returns the list's new length,
// shared by every list-shaped buffer's IncrementEvent/Append.
func appendToList(ctx context.Context, client *stagingstore.Client, key, line string) (int64, error) {
	if _, err := client.RPush(ctx, key, line); err != nil {
		return 0, err
	}

	return client.LLen(ctx, key)
}

func splitPipe(line string, n int) ([]string, bool) {
	parts := strings.SplitN(line, "|", n)
	if len(parts) != n {
		return nil, false
	}

	return parts, true
}
