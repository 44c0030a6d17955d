package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

const (
	stdinName = "-"

	initialLineBuffer = 64 << 10
	// maxLineBytes bounds a single input line.
	maxLineBytes = 16 << 20
)

// scanLines calls fn for every line of every named file, in order. No names,
// or the name "-", reads stdin. The slice passed to fn is only valid during
// the call.
func scanLines(ctx context.Context, stdin io.Reader, names []string, fn func(line []byte)) error {
	if len(names) == 0 {
		names = []string{stdinName}
	}

	for _, name := range names {
		if err := scanSource(ctx, stdin, name, fn); err != nil {
			return err
		}
	}

	return nil
}

func scanSource(ctx context.Context, stdin io.Reader, name string, fn func(line []byte)) error {
	r := stdin

	if name != stdinName {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()

		r = f
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		fn(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	return nil
}
