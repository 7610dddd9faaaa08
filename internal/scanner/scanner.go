// Package scanner filters a single file line by line in process, with the
// same line decisions ripgrep makes for the same compiled pattern.
package scanner

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"

	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/pattern"
	"github.com/standardbeagle/filterline/internal/types"
)

const (
	readBufferSize  = 64 * 1024
	writeBufferSize = 64 * 1024
)

var (
	utf8BOM        = []byte{0xEF, 0xBB, 0xBF}
	groupSeparator = []byte("--\n")
)

// ErrDirectoryInput is returned for directory inputs, which need ripgrep
var ErrDirectoryInput = stderrors.New("directory search requires ripgrep")

// Scanner is the fallback strategy used when ripgrep is unavailable
type Scanner struct{}

// New creates a scanner
func New() *Scanner {
	return &Scanner{}
}

// Scan filters the file at input into output. Memory use is bounded by the
// longest line (times the context window), never by the file size.
func (s *Scanner) Scan(ctx context.Context, input, output string, c *pattern.Compiled, opts types.SearchOptions) (types.Outcome, error) {
	outcome := types.Outcome{OutputPath: output, Strategy: types.StrategyFallback}

	info, err := os.Stat(input)
	if err != nil {
		return outcome, flerrors.NewFileError("open", input, err)
	}
	if info.IsDir() {
		return outcome, flerrors.NewToolUnavailableError("", ErrDirectoryInput.Error())
	}

	in, err := os.Open(input)
	if err != nil {
		return outcome, flerrors.NewFileError("open", input, err)
	}
	defer in.Close()
	adviseSequential(in)

	out, err := os.Create(output)
	if err != nil {
		return outcome, flerrors.NewFileError("create", output, err)
	}

	written, err := Filter(ctx, in, out, c, opts)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = flerrors.NewFileError("write", output, closeErr)
	}
	outcome.LinesWritten = written

	if err != nil {
		if rmErr := os.Remove(output); rmErr != nil {
			debug.LogScan("could not remove partial output %s: %v", output, rmErr)
		}
		var cancelErr *flerrors.CancelledError
		if stderrors.As(err, &cancelErr) {
			outcome.Cancelled = true
			return outcome, err
		}
		var fileErr *flerrors.FileError
		if !stderrors.As(err, &fileErr) {
			err = flerrors.NewFileError("filter", input, err)
		}
		return outcome, err
	}

	debug.LogScan("%s: wrote %d lines to %s", input, written, output)
	outcome.Success = true
	return outcome, nil
}

// Filter copies the selected lines of r to w and returns how many content
// lines it wrote. Every emitted line ends in "\n"; a "\r" before the
// terminator belongs to the line. With context, non-adjacent groups are
// separated by a "--" line.
func Filter(ctx context.Context, r io.Reader, w io.Writer, c *pattern.Compiled, opts types.SearchOptions) (int64, error) {
	f := &filter{
		w:       bufio.NewWriterSize(w, writeBufferSize),
		c:       c,
		invert:  opts.InvertMatch,
		context: opts.ContextLineCount,
	}
	if f.context > 0 {
		f.before = newRing(f.context)
	}

	br := bufio.NewReaderSize(r, readBufferSize)
	done := ctx.Done()
	var line []byte
	var lineNo int64

	for {
		select {
		case <-done:
			return f.written, flerrors.NewCancelledError("scan", ctx.Err())
		default:
		}

		var err error
		line, err = readLine(br, line[:0])
		if err == io.EOF {
			break
		}
		if err != nil {
			return f.written, err
		}
		lineNo++
		if lineNo == 1 {
			line = bytes.TrimPrefix(line, utf8BOM)
		}
		if err := f.feed(lineNo, line); err != nil {
			return f.written, err
		}
	}

	if err := f.w.Flush(); err != nil {
		return f.written, err
	}
	return f.written, nil
}

// readLine reads one line of any length into buf, without its "\n".
// A final line lacking a terminator is still returned.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	for {
		frag, err := br.ReadSlice('\n')
		buf = append(buf, frag...)
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF:
			if len(buf) == 0 {
				return buf, io.EOF
			}
			return buf, nil
		case err != nil:
			return buf, err
		}
		return buf[:len(buf)-1], nil
	}
}

type filter struct {
	w       *bufio.Writer
	c       *pattern.Compiled
	invert  bool
	context int

	before      *ring
	afterLeft   int
	lastPrinted int64 // line number of the last emitted line, 0 before any
	written     int64
}

func (f *filter) feed(lineNo int64, line []byte) error {
	if f.c.Selected(line, f.invert) {
		if f.before != nil {
			first := lineNo - int64(f.before.len())
			if f.lastPrinted > 0 && first > f.lastPrinted+1 {
				if _, err := f.w.Write(groupSeparator); err != nil {
					return err
				}
			}
			if err := f.before.drain(f.emit); err != nil {
				return err
			}
		}
		if err := f.emit(line); err != nil {
			return err
		}
		f.lastPrinted = lineNo
		f.afterLeft = f.context
		return nil
	}

	if f.afterLeft > 0 {
		f.afterLeft--
		f.lastPrinted = lineNo
		return f.emit(line)
	}
	if f.before != nil {
		f.before.push(line)
	}
	return nil
}

func (f *filter) emit(line []byte) error {
	if _, err := f.w.Write(line); err != nil {
		return err
	}
	if err := f.w.WriteByte('\n'); err != nil {
		return err
	}
	f.written++
	return nil
}

// ring holds the last few unselected lines as before-context.
// Slots are reused, so steady-state scanning does not allocate.
type ring struct {
	slots [][]byte
	start int
	count int
}

func newRing(size int) *ring {
	return &ring{slots: make([][]byte, size)}
}

func (r *ring) len() int {
	return r.count
}

func (r *ring) push(line []byte) {
	idx := (r.start + r.count) % len(r.slots)
	if r.count == len(r.slots) {
		idx = r.start
		r.start = (r.start + 1) % len(r.slots)
	} else {
		r.count++
	}
	r.slots[idx] = append(r.slots[idx][:0], line...)
}

// drain passes the held lines to fn oldest first and empties the ring
func (r *ring) drain(fn func([]byte) error) error {
	for i := 0; i < r.count; i++ {
		if err := fn(r.slots[(r.start+i)%len(r.slots)]); err != nil {
			return err
		}
	}
	r.start, r.count = 0, 0
	return nil
}
