// Package replay records frame scheduler telemetry to a compressed on-disk
// bundle and loads it back for tooling and tests.
package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	// DefaultFrameInterval is how often buffered frames are flushed to the zstd stream.
	DefaultFrameInterval = 200 * time.Millisecond

	// ManifestFile names the bundle manifest.
	ManifestFile = "manifest.json"
	// EventsFile names the snappy framed JSONL event stream.
	EventsFile = "events.jsonl.sz"
	// FramesFile names the zstd frame stream.
	FramesFile = "frames.bin.zst"

	// frameHeaderSize is tick (4) + captured unix nanos (8) + payload length (4).
	frameHeaderSize = 4 + 8 + 4
)

type frameBlob struct {
	tick       uint32
	capturedAt time.Time
	payload    []byte
}

// eventRecord is one line of the event stream.
type eventRecord struct {
	Tick       uint32          `json:"tick"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Writer streams telemetry to a recording directory.
type Writer struct {
	mu            sync.Mutex
	dir           string
	session       string
	now           func() time.Time
	frameInterval time.Duration
	eventFile     *os.File
	eventStream   *snappy.Writer
	frameFile     *os.File
	frameStream   *zstd.Encoder
	pending       []frameBlob
	lastFlush     time.Time
	parameters    Parameters
	closed        bool
}

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	Session         string `json:"session"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// NewWriter creates a timestamped recording directory under root and opens the
// compressed sinks.
func NewWriter(root, session string, frameInterval time.Duration, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, eris.New("recording root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}

	cleaned := sessionCleaner.ReplaceAllString(session, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405.000Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, eris.Wrapf(err, "create recording directory %s", path)
	}

	var closers []io.Closer
	fail := func(err error) (*Writer, Manifest, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, EventsFile))
	if err != nil {
		return fail(eris.Wrap(err, "create event stream"))
	}
	closers = append(closers, eventFile)
	eventStream := snappy.NewBufferedWriter(eventFile)
	closers = append(closers, eventStream)

	frameFile, err := os.Create(filepath.Join(path, FramesFile))
	if err != nil {
		return fail(eris.Wrap(err, "create frame stream"))
	}
	closers = append(closers, frameFile)
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		return fail(eris.Wrap(err, "open zstd encoder"))
	}
	closers = append(closers, frameStream)

	manifest := Manifest{
		Version:         1,
		Session:         cleaned,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      EventsFile,
		FramesPath:      FramesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fail(eris.Wrap(err, "encode manifest"))
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0o644); err != nil {
		return fail(eris.Wrap(err, "write manifest"))
	}

	return &Writer{
		dir:           path,
		session:       cleaned,
		now:           clock,
		frameInterval: frameInterval,
		eventFile:     eventFile,
		eventStream:   eventStream,
		frameFile:     frameFile,
		frameStream:   frameStream,
	}, manifest, nil
}

// Directory exposes the directory backing the recording.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetParameters records the tunables persisted in the header on Close.
func (w *Writer) SetParameters(params Parameters) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.parameters = params.Clone()
	w.mu.Unlock()
}

// AppendEvent writes one JSON event line. payload is marshalled as JSON.
func (w *Writer) AppendEvent(tick uint32, eventType string, payload any) error {
	if w == nil {
		return eris.New("writer not initialised")
	}
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrapf(err, "encode %s event", eventType)
		}
		raw = encoded
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return eris.New("writer closed")
	}
	line, err := json.Marshal(eventRecord{
		Tick:       tick,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       eventType,
		Payload:    raw,
	})
	if err != nil {
		return eris.Wrap(err, "encode event record")
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "write event")
	}
	return eris.Wrap(w.eventStream.Flush(), "flush event stream")
}

// AppendFrame buffers a binary frame and flushes the buffer once the frame
// interval has elapsed since the previous flush.
func (w *Writer) AppendFrame(tick uint32, payload []byte) error {
	if w == nil {
		return eris.New("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return eris.New("writer closed")
	}
	w.pending = append(w.pending, frameBlob{tick: tick, capturedAt: captured, payload: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= w.frameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Pending reports how many frames are buffered in memory.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush forces buffered frames to be written regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return eris.New("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close writes the header, flushes every buffer and releases file handles. It
// reports the first failure.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	header := Header{SchemaVersion: HeaderSchemaVersion, Session: w.session, Parameters: w.parameters.Clone(), FilePointer: ManifestFile}
	keep(WriteHeader(filepath.Join(w.dir, HeaderFile), header))
	keep(w.flushLocked())
	keep(eris.Wrap(w.eventStream.Close(), "close event stream"))
	keep(eris.Wrap(w.eventFile.Close(), "close event file"))
	keep(eris.Wrap(w.frameStream.Close(), "close frame stream"))
	keep(eris.Wrap(w.frameFile.Close(), "close frame file"))
	return firstErr
}

// flushLocked writes buffered frames as length-prefixed records; callers hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	header := make([]byte, frameHeaderSize)
	for _, frame := range w.pending {
		binary.LittleEndian.PutUint32(header[0:4], frame.tick)
		binary.LittleEndian.PutUint64(header[4:12], uint64(frame.capturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[12:16], uint32(len(frame.payload)))
		if _, err := w.frameStream.Write(header); err != nil {
			return eris.Wrap(err, "write frame header")
		}
		if _, err := w.frameStream.Write(frame.payload); err != nil {
			return eris.Wrap(err, "write frame payload")
		}
	}
	w.pending = w.pending[:0]
	return nil
}
