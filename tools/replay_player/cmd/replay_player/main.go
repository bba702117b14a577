package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/AdotEXE/protocol-XT-sub007/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a recording directory or its manifest.json")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	bundle, err := replayplayer.ReplayBundle(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	//1.- Render the recording as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
