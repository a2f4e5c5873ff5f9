// Package file implements a change feed backed by an append-only log file:
// producers append one record per line, every pull reads the complete lines
// written since the previous pull.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/archivekc/oliphant/feed"
)

const sourceName = "file"

// Tailer reads new records from a log file. A trailing line without a
// newline is held back until it is completed. If the file shrinks it is
// assumed to have been truncated and is re-read from the start.
type Tailer struct {
	path string

	mu      sync.Mutex
	offset  int64
	partial []byte
	closed  bool
}

var _ feed.Source = (*Tailer)(nil)

// Options for NewTailer.
type Options struct {
	// FromStart replays records already in the file. By default the tailer
	// starts at the current end, since earlier records predate every session.
	FromStart bool
}

func NewTailer(path string, opts Options) (*Tailer, error) {
	t := &Tailer{path: path}
	if !opts.FromStart {
		st, err := os.Stat(path)
		switch {
		case err == nil:
			t.offset = st.Size()
		case errors.Is(err, fs.ErrNotExist):
			// starts empty; records appear once the producer creates it
		default:
			return nil, err
		}
	}
	return t, nil
}

func (t *Tailer) Path() string { return t.path }

func (t *Tailer) PullLatest(ctx context.Context) (feed.Batch, error) {
	if err := ctx.Err(); err != nil {
		return feed.Batch{}, feed.Unavailable(sourceName, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return feed.Batch{}, feed.Unavailable(sourceName, os.ErrClosed)
	}

	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return feed.Batch{}, nil
	}
	if err != nil {
		return feed.Batch{}, feed.Unavailable(sourceName, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return feed.Batch{}, feed.Unavailable(sourceName, err)
	}
	if st.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if st.Size() == t.offset {
		return feed.Batch{}, nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return feed.Batch{}, feed.Unavailable(sourceName, err)
	}

	var records []string
	r := bufio.NewReader(io.LimitReader(f, st.Size()-t.offset))
	for {
		line, err := r.ReadBytes('\n')
		t.offset += int64(len(line))
		if err == io.EOF {
			t.partial = append(t.partial, line...)
			break
		}
		if err != nil {
			return feed.ParseRecords(records), feed.Unavailable(sourceName, err)
		}
		if len(t.partial) > 0 {
			line = append(t.partial, line...)
			t.partial = nil
		}
		if rec := bytes.TrimRight(line, "\r\n"); len(rec) > 0 {
			records = append(records, string(rec))
		}
	}
	return feed.ParseRecords(records), nil
}

func (t *Tailer) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Appender writes records to the log. Safe for concurrent use within one
// process; each record is a single write on an O_APPEND descriptor.
type Appender struct {
	mu sync.Mutex
	f  *os.File
}

func NewAppender(path string) (*Appender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Appender{f: f}, nil
}

func (a *Appender) Append(ns ...feed.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, n := range ns {
		buf.WriteString(feed.FormatRecord(n))
		buf.WriteByte('\n')
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.f.Write(buf.Bytes())
	return err
}

func (a *Appender) Close() error { return a.f.Close() }
