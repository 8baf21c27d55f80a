// Package main is the entry point for the hls2vod application.
package main

import (
	"os"

	"github.com/basshelal/hls2vod/cmd/hls2vod/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
