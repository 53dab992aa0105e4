// SPDX-License-Identifier: MIT
package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// WritePNG encodes img to path, replacing the file atomically so readers
// never observe a partial frame.
func WritePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".frame-*.png")
	if err != nil {
		return fmt.Errorf("render: create frame file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("render: encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("render: close frame file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("render: replace frame file: %w", err)
	}
	return nil
}
