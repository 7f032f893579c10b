package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// #region errors

// ErrNotFound is returned by decoders when no readable symbol is present.
var ErrNotFound = errors.New("barcode not found")

// #endregion errors

// #region barcode-format

// BarcodeFormat names a barcode symbology.
type BarcodeFormat string

const (
	FormatAztec           BarcodeFormat = "AZTEC"
	FormatCodabar         BarcodeFormat = "CODABAR"
	FormatCode39          BarcodeFormat = "CODE_39"
	FormatCode93          BarcodeFormat = "CODE_93"
	FormatCode128         BarcodeFormat = "CODE_128"
	FormatDataMatrix      BarcodeFormat = "DATA_MATRIX"
	FormatEAN8            BarcodeFormat = "EAN_8"
	FormatEAN13           BarcodeFormat = "EAN_13"
	FormatITF             BarcodeFormat = "ITF"
	FormatMaxiCode        BarcodeFormat = "MAXICODE"
	FormatPDF417          BarcodeFormat = "PDF_417"
	FormatQRCode          BarcodeFormat = "QR_CODE"
	FormatRSS14           BarcodeFormat = "RSS_14"
	FormatRSSExpanded     BarcodeFormat = "RSS_EXPANDED"
	FormatUPCA            BarcodeFormat = "UPC_A"
	FormatUPCE            BarcodeFormat = "UPC_E"
	FormatUPCEANExtension BarcodeFormat = "UPC_EAN_EXTENSION"
)

var knownFormats = map[BarcodeFormat]bool{
	FormatAztec: true, FormatCodabar: true, FormatCode39: true, FormatCode93: true,
	FormatCode128: true, FormatDataMatrix: true, FormatEAN8: true, FormatEAN13: true,
	FormatITF: true, FormatMaxiCode: true, FormatPDF417: true, FormatQRCode: true,
	FormatRSS14: true, FormatRSSExpanded: true, FormatUPCA: true, FormatUPCE: true,
	FormatUPCEANExtension: true,
}

// ParseFormat resolves a format name such as "QR_CODE". Matching is case-insensitive.
func ParseFormat(name string) (BarcodeFormat, error) {
	f := BarcodeFormat(strings.ToUpper(strings.TrimSpace(name)))
	if !knownFormats[f] {
		return "", fmt.Errorf("unknown barcode format %q", name)
	}
	return f, nil
}

// #endregion barcode-format

// #region hints

// HintKind enumerates decode hints understood by the harness.
type HintKind string

const (
	HintTryHarder   HintKind = "TRY_HARDER"
	HintPureBarcode HintKind = "PURE_BARCODE"
)

// Hints maps hint kinds to values. A nil Hints is valid and empty.
type Hints map[HintKind]any

// Clone returns an independent copy of h.
func (h Hints) Clone() Hints {
	out := make(Hints, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

// With returns a copy of h with k set to v.
func (h Hints) With(k HintKind, v any) Hints {
	out := h.Clone()
	out[k] = v
	return out
}

// Enabled reports whether k is set to boolean true.
func (h Hints) Enabled(k HintKind) bool {
	v, ok := h[k].(bool)
	return ok && v
}

// #endregion hints

// #region result

// Result is a successful decode.
type Result struct {
	Format   BarcodeFormat
	Text     string
	Metadata map[MetadataKind]string
}

// #endregion result

// #region decoder

// Decoder decodes a single barcode from a raster image.
// Binarization is the implementation's concern.
type Decoder interface {
	Decode(ctx context.Context, img image.Image, hints Hints) (*Result, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, img image.Image, hints Hints) (*Result, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, img image.Image, hints Hints) (*Result, error) {
	return f(ctx, img, hints)
}

// #endregion decoder
