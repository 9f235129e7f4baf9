package traffic

import (
	"context"
	"errors"
	"os"
	"time"
)

// DefaultTailInterval is how often Tail re-reads the request log looking
// for new entries.
const DefaultTailInterval = time.Second

// Tail streams request entries to out as the capture proxy appends them
// to the log at path. Entries already in the log are sent first. A
// missing log is not an error; Tail keeps polling until it appears. If
// the log shrinks, a fresh capture replaced it and Tail starts over from
// the top.
//
// Tail blocks until ctx is cancelled and closes out before returning. A
// non-nil error means the log exists but cannot be read.
func Tail(ctx context.Context, path string, out chan<- RequestEntry) error {
	defer close(out)

	ticker := time.NewTicker(DefaultTailInterval)
	defer ticker.Stop()

	sent := 0
	for {
		entries, err := ReadRequests(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if len(entries) < sent {
			sent = 0
		}
		for _, entry := range entries[sent:] {
			select {
			case out <- entry:
			case <-ctx.Done():
				return nil
			}
		}
		sent = len(entries)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}
