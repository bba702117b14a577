package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/AdotEXE/protocol-XT-sub007/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing recordings")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s (schema %d)\n", entry.ManifestPath, entry.Header.SchemaVersion)
		fmt.Printf("  session: %s\n", entry.Header.Session)
		if len(entry.Header.Parameters) > 0 {
			keys := make([]string, 0, len(entry.Header.Parameters))
			for key := range entry.Header.Parameters {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			fmt.Printf("  parameters:\n")
			for _, key := range keys {
				fmt.Printf("    %s: %.3f\n", key, entry.Header.Parameters[key])
			}
		}
	}
}
