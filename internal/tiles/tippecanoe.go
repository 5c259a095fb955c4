// Package tiles shells out to tippecanoe to turn a feature collection
// file into a PMTiles archive. The run treats tiling as best-effort: a
// missing tool and a non-zero exit both surface as a plain error the
// orchestrator logs and moves past.
package tiles

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Options tune the tippecanoe invocation.
type Options struct {
	MinZoom int
	MaxZoom int
	Layer   string
}

// DefaultOptions matches the published mirror: zoom 0-12, one layer.
func DefaultOptions() Options {
	return Options{MinZoom: 0, MaxZoom: 12, Layer: "projects"}
}

// runTippecanoe is injectable in tests.
var runTippecanoe = func(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "tippecanoe", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tippecanoe %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Generate writes a PMTiles archive for the GeoJSON file at inPath to
// outPath. Feature and tile-size limits are disabled so sparse low
// zooms keep every project polygon.
func Generate(ctx context.Context, opts Options, inPath, outPath string) error {
	if opts.Layer == "" {
		opts.Layer = "projects"
	}
	args := []string{
		"-o", outPath,
		"-z", strconv.Itoa(opts.MaxZoom),
		"-Z", strconv.Itoa(opts.MinZoom),
		"--force",
		"--no-feature-limit",
		"--no-tile-size-limit",
		"-l", opts.Layer,
		inPath,
	}
	return runTippecanoe(ctx, args...)
}
