package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event is one decoded event line.
type Event struct {
	Tick       uint32
	CapturedAt time.Time
	Type       string
	Payload    json.RawMessage
}

// Frame is one decoded telemetry frame.
type Frame struct {
	Tick       uint32
	CapturedAt time.Time
	Payload    []byte
}

// Decode unmarshals the frame payload.
func (f Frame) Decode() (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := proto.Unmarshal(f.Payload, out); err != nil {
		return nil, eris.Wrapf(err, "decode frame %d", f.Tick)
	}
	return out, nil
}

// TimelineEntry is either an event or a frame, ordered for deterministic iteration.
type TimelineEntry struct {
	Tick       uint32
	CapturedAt time.Time
	Type       string
	Event      *Event
	Frame      *Frame
}

// FrameEntryType is the TimelineEntry type used for frames.
const FrameEntryType = "frame"

// Loader rehydrates a recording directory.
type Loader struct {
	manifest  Manifest
	header    Header
	hasHeader bool
	events    []Event
	frames    []Frame
}

// Load reads the manifest, the optional header and both streams from dir.
func Load(dir string) (*Loader, error) {
	if dir == "" {
		return nil, eris.New("recording path must be provided")
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, eris.Wrap(err, "read manifest")
	}
	loader := &Loader{}
	if err := json.Unmarshal(data, &loader.manifest); err != nil {
		return nil, eris.Wrap(err, "decode manifest")
	}

	//1.- The header is only written on Close; a crashed session still loads.
	headerPath := filepath.Join(dir, HeaderFile)
	if _, err := os.Stat(headerPath); err == nil {
		if loader.header, err = ReadHeader(headerPath); err != nil {
			return nil, err
		}
		loader.hasHeader = true
	} else if !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "stat header")
	}

	if loader.events, err = readEvents(filepath.Join(dir, loader.manifest.EventsPath)); err != nil {
		return nil, err
	}
	if loader.frames, err = readFrames(filepath.Join(dir, loader.manifest.FramesPath)); err != nil {
		return nil, err
	}
	return loader, nil
}

func readEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open event stream")
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, eris.Wrap(err, "decode event line")
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, eris.Wrap(err, "parse event captured_at")
		}
		events = append(events, Event{
			Tick:       record.Tick,
			CapturedAt: captured,
			Type:       record.Type,
			Payload:    append(json.RawMessage(nil), record.Payload...),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read event stream")
	}
	return events, nil
}

func readFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open frame stream")
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, eris.Wrap(err, "open zstd decoder")
	}
	defer decoder.Close()

	var frames []Frame
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(decoder, header); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return nil, eris.Wrap(err, "read frame header")
		}
		size := binary.LittleEndian.Uint32(header[12:16])
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, eris.Wrap(err, "read frame payload")
		}
		frames = append(frames, Frame{
			Tick:       binary.LittleEndian.Uint32(header[0:4]),
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(header[4:12]))).UTC(),
			Payload:    payload,
		})
	}
}

// Manifest returns the bundle manifest.
func (l *Loader) Manifest() Manifest { return l.manifest }

// Header returns the header and whether one was written.
func (l *Loader) Header() (Header, bool) { return l.header, l.hasHeader }

// Events returns a copy of every event in file order.
func (l *Loader) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Frames returns a copy of every frame in file order.
func (l *Loader) Frames() []Frame {
	out := make([]Frame, len(l.frames))
	copy(out, l.frames)
	return out
}

// Replay iterates events and frames ordered by capture time. Within the same
// instant events precede the frame they were emitted with.
func (l *Loader) Replay(apply func(TimelineEntry) error) error {
	if l == nil {
		return eris.New("loader not initialised")
	}
	if apply == nil {
		return eris.New("replay callback must be provided")
	}
	entries := make([]TimelineEntry, 0, len(l.events)+len(l.frames))
	for i := range l.events {
		event := &l.events[i]
		entries = append(entries, TimelineEntry{Tick: event.Tick, CapturedAt: event.CapturedAt, Type: event.Type, Event: event})
	}
	for i := range l.frames {
		frame := &l.frames[i]
		entries = append(entries, TimelineEntry{Tick: frame.Tick, CapturedAt: frame.CapturedAt, Type: FrameEntryType, Frame: frame})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CapturedAt.Equal(entries[j].CapturedAt) {
			return entries[i].CapturedAt.Before(entries[j].CapturedAt)
		}
		return entries[i].Event != nil && entries[j].Event == nil
	})
	for _, entry := range entries {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}
