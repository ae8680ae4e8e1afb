package report

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/JGnft17/clawtographer/internal/errors"
)

// Written describes the files produced by Write.
type Written struct {
	Path          string `json:"path"`
	TimestampPath string `json:"timestamp_path"`
	Bytes         int    `json:"bytes"`
}

// Paths returns the report and timestamp paths for dir.
func Paths(dir string) (report, timestamp string) {
	return filepath.Join(dir, FileName), filepath.Join(dir, TimestampName)
}

// Prepare creates dir if needed and checks that it accepts new files.
func Prepare(dir string) error {
	if dir == "" {
		return errors.NewInvalidRequest("output directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewOutput(dir, err)
	}
	probe, err := os.CreateTemp(dir, ".clawtographer-probe-*")
	if err != nil {
		return errors.NewOutput(dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// Write stores doc as CODEBASE_MAP.md in dir and stamps the generation time.
// Both files are replaced atomically; an existing map survives a failed write.
func Write(dir, doc string, now time.Time) (*Written, error) {
	if err := Prepare(dir); err != nil {
		return nil, err
	}
	path, stamp := Paths(dir)
	if err := writeAtomic(path, []byte(doc)); err != nil {
		return nil, err
	}
	if err := writeAtomic(stamp, []byte(now.Format(time.RFC3339)+"\n")); err != nil {
		return nil, err
	}
	return &Written{Path: path, TimestampPath: stamp, Bytes: len(doc)}, nil
}

func writeAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return errors.NewOutput(path, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewOutput(path, err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewOutput(path, err)
	}
	if err := file.Close(); err != nil {
		return errors.NewOutput(path, err)
	}
	file = nil

	// os.Rename would replace the link, not its target.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewOutput(path, fmt.Errorf("destination is a symlink"))
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if rmErr := os.Remove(path); rmErr == nil {
				err = os.Rename(tempPath, path)
			}
		}
		if err != nil {
			return errors.NewOutput(path, err)
		}
	}

	success = true
	return nil
}
