// Command update-cache regenerates the HealthKit gob cache from the export.
//
// Usage:
//
//	go run ./cmd/update-cache [export-dir] [cache-dir]
//
// This reads from ./apple_health_export/ and writes to ./oddish-cache/ by
// default. Run it after unpacking a fresh export.zip so the first real
// invocation of the toolkit doesn't pay for the XML walk.
package main

import (
	"fmt"
	"os"

	"oddish"
)

func main() {
	exportDir := "apple_health_export"
	cacheDir := "oddish-cache"
	if len(os.Args) > 1 {
		exportDir = os.Args[1]
	}
	if len(os.Args) > 2 {
		cacheDir = os.Args[2]
	}

	fmt.Println("Regenerating HealthKit cache from the export...")

	hk, err := oddish.NewHealthKit(
		oddish.WithExportDir(exportDir),
		oddish.WithCacheDir(cacheDir),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := hk.Rebuild(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Cache regenerated: %d quantity types, %d workout types, %d route points.\n",
		len(hk.Quantities), len(hk.Workouts), hk.Routes.Len())
}
