package replaycatalog

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/replay"
)

// Entry captures a recording header alongside its resolved manifest path.
type Entry struct {
	HeaderPath   string        `json:"header_path"`
	ManifestPath string        `json:"manifest_path"`
	Header       replay.Header `json:"header"`
}

// List walks root and returns every parsed recording header, ordered by session
// then path.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, eris.New("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, eris.Wrapf(err, "stat %s", root)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("%s is not a directory", root)
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != replay.HeaderFile {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return eris.Wrapf(err, "header %s", path)
		}
		manifestPath := header.FilePointer
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(filepath.Dir(path), manifestPath)
		}
		entries = append(entries, Entry{HeaderPath: path, ManifestPath: manifestPath, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.Session == entries[j].Header.Session {
			return entries[i].ManifestPath < entries[j].ManifestPath
		}
		return entries[i].Header.Session < entries[j].Header.Session
	})
	return entries, nil
}

// MarshalEntries produces indented JSON for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
