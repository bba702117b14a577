package replayplayer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/replay"
)

// Event is an event rendered for JSON output.
type Event struct {
	Tick       uint32          `json:"tick"`
	CapturedAt time.Time       `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Frame is a telemetry frame with its payload decoded into plain JSON values.
type Frame struct {
	Tick       uint32         `json:"tick"`
	CapturedAt time.Time      `json:"captured_at"`
	Fields     map[string]any `json:"fields"`
}

// Bundle is a whole recording rendered for inspection.
type Bundle struct {
	Manifest replay.Manifest `json:"manifest"`
	Header   *replay.Header  `json:"header,omitempty"`
	Events   []Event         `json:"events"`
	Frames   []Frame         `json:"frames"`
}

// ReplayBundle loads a recording directory, or the directory of a manifest path,
// and decodes every frame.
func ReplayBundle(path string) (Bundle, error) {
	if path == "" {
		return Bundle{}, eris.New("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Bundle{}, eris.Wrapf(err, "stat %s", path)
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	loader, err := replay.Load(dir)
	if err != nil {
		return Bundle{}, err
	}
	bundle := Bundle{Manifest: loader.Manifest()}
	if loader.Manifest().Version != 1 {
		return Bundle{}, eris.Errorf("unsupported manifest version %d", loader.Manifest().Version)
	}
	if header, ok := loader.Header(); ok {
		bundle.Header = &header
	}

	//1.- Walk the merged timeline so events and frames keep their recorded order.
	err = loader.Replay(func(entry replay.TimelineEntry) error {
		if entry.Event != nil {
			bundle.Events = append(bundle.Events, Event{
				Tick:       entry.Event.Tick,
				CapturedAt: entry.Event.CapturedAt,
				Type:       entry.Event.Type,
				Payload:    entry.Event.Payload,
			})
			return nil
		}
		decoded, err := entry.Frame.Decode()
		if err != nil {
			return err
		}
		bundle.Frames = append(bundle.Frames, Frame{
			Tick:       entry.Frame.Tick,
			CapturedAt: entry.Frame.CapturedAt,
			Fields:     decoded.AsMap(),
		})
		return nil
	})
	if err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}
