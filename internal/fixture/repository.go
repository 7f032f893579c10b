package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// #region errors

var (
	// ErrMissingFixtureDirectory means the test base does not exist.
	ErrMissingFixtureDirectory = errors.New("fixture directory not found; download and install the test images")
	// ErrMissingExpectationFile means an image has neither a .txt nor a .bin sibling.
	ErrMissingExpectationFile = errors.New("expectation file not found")
	// ErrMalformedMetadata means a metadata sidecar line has no key/value separator.
	ErrMalformedMetadata = errors.New("malformed metadata sidecar")
)

// #endregion errors

// #region test-base

// imageExtensions is matched case-sensitively against filepath.Ext.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".png":  true,
}

// IsImage reports whether path has one of the fixture image extensions.
func IsImage(path string) bool {
	return imageExtensions[filepath.Ext(path)]
}

// IsFixtureFile reports whether a change to path can alter a run: an image,
// an expectation or a metadata sidecar.
func IsFixtureFile(path string) bool {
	switch filepath.Ext(path) {
	case ".txt", ".bin":
		return true
	}
	return IsImage(path)
}

// ResolveTestBase turns a test base suffix into an absolute path.
func ResolveTestBase(suffix string) (string, error) {
	abs, err := filepath.Abs(suffix)
	if err != nil {
		return "", fmt.Errorf("resolve test base %s: %w", suffix, err)
	}
	return abs, nil
}

// #endregion test-base

// #region enumerate

// EnumerateImages walks baseDir recursively and returns every raster image in
// lexical order. Directories without any image produce a warning only.
func EnumerateImages(baseDir string, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFixtureDirectory, baseDir)
		}
		return nil, fmt.Errorf("stat %s: %w", baseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingFixtureDirectory, baseDir)
	}
	return walkDirectory(baseDir, logger)
}

func walkDirectory(dir string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var results []string
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			// Follow links so symlinked fixture folders are walked too.
			info, err := os.Stat(p)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", p, err)
			}
			isDir = info.IsDir()
		}
		if isDir {
			sub, err := walkDirectory(p, logger)
			if err != nil {
				return nil, err
			}
			results = append(results, sub...)
			continue
		}
		if IsImage(p) {
			results = append(results, p)
		}
	}

	if len(results) == 0 {
		logger.Warn("no image files in folder", zap.String("dir", dir))
	}
	return results, nil
}

// #endregion enumerate
