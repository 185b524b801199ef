package peripherals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultClip = "default.wav"

// AplayPlayer plays WAV clips from a directory with aplay, falling back to
// default.wav when the requested clip is missing.
type AplayPlayer struct {
	dir string
	run commandRunner
}

func NewAplayPlayer(dir string) *AplayPlayer {
	return &AplayPlayer{dir: dir, run: runCommand}
}

func (a *AplayPlayer) resolve(file string) string {
	path := file
	if !filepath.IsAbs(path) {
		if !strings.HasSuffix(path, ".wav") {
			path += ".wav"
		}
		path = filepath.Join(a.dir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return filepath.Join(a.dir, defaultClip)
	}
	return path
}

func (a *AplayPlayer) Play(ctx context.Context, file string) error {
	path := a.resolve(file)
	if out, err := a.run(ctx, "", "aplay", "-q", path); err != nil {
		return fmt.Errorf("aplay %s: %w: %s", path, err, strings.TrimSpace(out))
	}
	return nil
}
