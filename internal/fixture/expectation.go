package fixture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// #region expectation-type

// Expectation is what an image is supposed to decode to.
type Expectation struct {
	Text string
	// Metadata is nil when the image has no .metadata.txt sidecar.
	Metadata map[decode.MetadataKind]string
}

// #endregion expectation-type

// #region paths

// ExpectationPaths returns the sibling file names derived from an image path:
// <base>.txt, <base>.bin and <base>.metadata.txt.
func ExpectationPaths(imagePath string) (txt, bin, metadata string) {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	return base + ".txt", base + ".bin", base + ".metadata.txt"
}

// #endregion paths

// #region loader

// LoadExpectation reads the expected text (UTF-8 .txt, else ISO-8859-1 .bin)
// and the optional metadata sidecar for imagePath.
func LoadExpectation(imagePath string, logger *zap.Logger) (Expectation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	txtPath, binPath, mdPath := ExpectationPaths(imagePath)

	var exp Expectation
	text, err := readTextFile(txtPath, logger)
	switch {
	case err == nil:
		exp.Text = text
	case errors.Is(err, os.ErrNotExist):
		text, err = readBinFile(binPath, logger)
		if errors.Is(err, os.ErrNotExist) {
			return Expectation{}, fmt.Errorf("%w: %s (no .txt or .bin)", ErrMissingExpectationFile, imagePath)
		}
		if err != nil {
			return Expectation{}, err
		}
		exp.Text = text
	default:
		return Expectation{}, err
	}

	md, err := readMetadataFile(mdPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Expectation{}, err
	}
	exp.Metadata = md
	return exp, nil
}

func readTextFile(path string, logger *zap.Logger) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := string(data)
	warnTrailingNewline(path, s, logger)
	return s, nil
}

func readBinFile(path string, logger *zap.Logger) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode latin-1 %s: %w", path, err)
	}
	s := string(decoded)
	warnTrailingNewline(path, s, logger)
	return s, nil
}

func warnTrailingNewline(path, s string, logger *zap.Logger) {
	if strings.HasSuffix(s, "\n") {
		logger.Warn("expectation ends with a newline; this may not be intended and cause a test failure",
			zap.String("file", path))
	}
}

// #endregion loader

// #region metadata-sidecar

// readMetadataFile parses KEY=VALUE (or KEY: VALUE) lines. Blank lines and
// lines starting with '#' or '!' are skipped.
func readMetadataFile(path string) (map[decode.MetadataKind]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(path, data)
}

// ParseMetadata parses sidecar contents; name is used in error messages.
func ParseMetadata(name string, data []byte) (map[decode.MetadataKind]string, error) {
	md := make(map[decode.MetadataKind]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || raw[0] == '#' || raw[0] == '!' {
			continue
		}
		i := strings.IndexAny(raw, "=:")
		if i < 0 {
			return nil, fmt.Errorf("%w: %s:%d: %q", ErrMalformedMetadata, name, line, raw)
		}
		key := strings.TrimSpace(raw[:i])
		kind, err := decode.ParseMetadataKind(key)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		md[kind] = strings.TrimSpace(raw[i+1:])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", name, err)
	}
	return md, nil
}

// #endregion metadata-sidecar
