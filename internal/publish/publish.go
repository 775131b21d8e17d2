// Package publish writes derived views as markdown files.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

type WriteOptions struct {
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WriteView renders v to <toDir>/views/<view-id>.md.
func WriteView(v View, toDir string, opt WriteOptions) (WriteResult, error) {
	if strings.TrimSpace(v.ID) == "" {
		return WriteResult{}, errors.New("missing view id")
	}
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)

	md, err := RenderViewMarkdown(v)
	if err != nil {
		return WriteResult{}, err
	}

	outDir := filepath.Join(toDir, "views")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WriteResult{}, err
	}
	outPath := filepath.Join(outDir, v.ID+".md")
	if err := writeFile(outPath, []byte(md), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: []string{outPath}}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
