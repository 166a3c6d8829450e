// Package main provides the entry point for the lidar-snapshot CLI.
package main

import (
	"os"

	"github.com/opengeos/maplibre-gl-noaa-lidar/cmd/lidar-snapshot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
