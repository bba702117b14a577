package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// HeaderSchemaVersion tracks the schema version for recording header documents.
const HeaderSchemaVersion = 1

// HeaderFile is the name of the header inside a recording directory.
const HeaderFile = "header.json"

// Parameters captures the scheduler tunables a recording was made with.
type Parameters map[string]float64

// Clone returns a copy of the parameters map.
func (p Parameters) Clone() Parameters {
	if len(p) == 0 {
		return nil
	}
	clone := make(Parameters, len(p))
	for key, value := range p {
		clone[key] = value
	}
	return clone
}

// Header is the metadata persisted alongside a recording.
type Header struct {
	SchemaVersion int        `json:"schema_version"`
	Session       string     `json:"session"`
	Parameters    Parameters `json:"parameters,omitempty"`
	FilePointer   string     `json:"file_pointer"`
}

// Validate ensures the header contains enough information for tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return eris.New("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return eris.New("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the header to path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode header")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create header directory")
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "write header %s", path)
	}
	return nil
}

// ReadHeader loads and validates a header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, eris.Wrapf(err, "read header %s", path)
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, eris.Wrap(err, "decode header")
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
