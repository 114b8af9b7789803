// Package journal persists audit events as an append-only stream of
// CBOR-encoded frames. Each frame carries the stream identity and a
// sequence number so a replay can detect truncation and reordering.
package journal

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/gavelworks/gavel/core"
)

// maxFrameSize bounds a single frame; anything larger is a corrupt
// length prefix, not a real record.
const maxFrameSize = 1 << 20

// Frame is one journal record: an audit event wrapped with the stream
// identity and its position in the stream. Sequence numbers start at 1
// and increase by exactly one per frame.
type Frame struct {
	Stream string     `cbor:"stream"`
	Seq    uint64     `cbor:"seq"`
	Event  core.Event `cbor:"event"`
}

// Writer appends frames to a journal file. It implements core.Recorder.
// Safe for concurrent use.
type Writer struct {
	// SyncEach forces an fsync after every record. Set before the first
	// Record call. Off by default; Close always syncs.
	SyncEach bool

	mu     sync.Mutex
	file   *os.File
	stream string
	seq    uint64
}

// OpenWriter opens path for appending, creating it if absent. A new file
// starts a fresh stream; an existing file is scanned so the writer
// resumes the recorded stream and sequence.
func OpenWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, xerrors.Errorf("journal: open %s: %w", path, err)
	}

	w := &Writer{file: file, stream: uuid.NewString()}

	reader := NewReader(file)
	for {
		frame, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			file.Close()
			return nil, xerrors.Errorf("journal: scan %s: %w", path, err)
		}
		w.stream = frame.Stream
		w.seq = frame.Seq
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, xerrors.Errorf("journal: seek %s: %w", path, err)
	}
	return w, nil
}

// Stream returns the stream identity frames are written under.
func (w *Writer) Stream() string { return w.stream }

// Record appends one event. The frame is flushed to the file before
// Record returns, so a crash loses at most the frame being written.
func (w *Writer) Record(ev core.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame := Frame{Stream: w.stream, Seq: w.seq + 1, Event: ev}
	payload, err := cbor.Marshal(frame)
	if err != nil {
		return xerrors.Errorf("journal: encode frame %d: %w", frame.Seq, err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.file.Write(prefix[:]); err != nil {
		return xerrors.Errorf("journal: write frame %d: %w", frame.Seq, err)
	}
	if _, err := w.file.Write(payload); err != nil {
		return xerrors.Errorf("journal: write frame %d: %w", frame.Seq, err)
	}
	if w.SyncEach {
		if err := w.file.Sync(); err != nil {
			return xerrors.Errorf("journal: sync frame %d: %w", frame.Seq, err)
		}
	}
	w.seq = frame.Seq
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return xerrors.Errorf("journal: sync: %w", err)
	}
	return w.file.Close()
}

// Reader iterates the frames of a journal stream in order.
type Reader struct {
	src io.Reader
}

// NewReader reads frames from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Next returns the next frame. It returns io.EOF at a clean end of
// stream; a partial trailing frame is reported as an error.
func (r *Reader) Next() (Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r.src, prefix[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, xerrors.Errorf("journal: read frame length: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 || size > maxFrameSize {
		return Frame{}, xerrors.Errorf("journal: implausible frame length %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.src, payload); err != nil {
		return Frame{}, xerrors.Errorf("journal: read frame body: %w", err)
	}

	var frame Frame
	if err := cbor.Unmarshal(payload, &frame); err != nil {
		return Frame{}, xerrors.Errorf("journal: decode frame: %w", err)
	}
	return frame, nil
}

// ReadAll drains src and returns its frames, verifying that sequence
// numbers are contiguous from 1 and that every frame belongs to the same
// stream.
func ReadAll(src io.Reader) ([]Frame, error) {
	reader := NewReader(src)
	var frames []Frame
	for {
		frame, err := reader.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		if want := uint64(len(frames)) + 1; frame.Seq != want {
			return nil, xerrors.Errorf("journal: frame %d out of sequence (want %d)", frame.Seq, want)
		}
		if len(frames) > 0 && frame.Stream != frames[0].Stream {
			return nil, xerrors.Errorf("journal: frame %d from foreign stream %s", frame.Seq, frame.Stream)
		}
		frames = append(frames, frame)
	}
}

// ReadFile loads and verifies all frames of the journal at path.
func ReadFile(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("journal: open %s: %w", path, err)
	}
	defer file.Close()
	return ReadAll(file)
}
