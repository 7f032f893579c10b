package decode

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/oned/rss"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// #region reader-table

// Constructors are wrapped because some packages return concrete reader types.
var zxingReaders = map[BarcodeFormat]func() gozxing.Reader{
	FormatAztec:      func() gozxing.Reader { return aztec.NewAztecReader() },
	FormatCodabar:    func() gozxing.Reader { return oned.NewCodaBarReader() },
	FormatCode39:     func() gozxing.Reader { return oned.NewCode39Reader() },
	FormatCode93:     func() gozxing.Reader { return oned.NewCode93Reader() },
	FormatCode128:    func() gozxing.Reader { return oned.NewCode128Reader() },
	FormatDataMatrix: func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
	FormatEAN8:       func() gozxing.Reader { return oned.NewEAN8Reader() },
	FormatEAN13:      func() gozxing.Reader { return oned.NewEAN13Reader() },
	FormatITF:        func() gozxing.Reader { return oned.NewITFReader() },
	FormatQRCode:     func() gozxing.Reader { return qrcode.NewQRCodeReader() },
	FormatRSS14:      func() gozxing.Reader { return rss.NewRSS14Reader() },
	FormatUPCA:       func() gozxing.Reader { return oned.NewUPCAReader() },
	FormatUPCE:       func() gozxing.Reader { return oned.NewUPCEReader() },
}

var zxingFormats = map[gozxing.BarcodeFormat]BarcodeFormat{
	gozxing.BarcodeFormat_AZTEC:       FormatAztec,
	gozxing.BarcodeFormat_CODABAR:     FormatCodabar,
	gozxing.BarcodeFormat_CODE_39:     FormatCode39,
	gozxing.BarcodeFormat_CODE_93:     FormatCode93,
	gozxing.BarcodeFormat_CODE_128:    FormatCode128,
	gozxing.BarcodeFormat_DATA_MATRIX: FormatDataMatrix,
	gozxing.BarcodeFormat_EAN_8:       FormatEAN8,
	gozxing.BarcodeFormat_EAN_13:      FormatEAN13,
	gozxing.BarcodeFormat_ITF:         FormatITF,
	gozxing.BarcodeFormat_QR_CODE:     FormatQRCode,
	gozxing.BarcodeFormat_RSS_14:      FormatRSS14,
	gozxing.BarcodeFormat_UPC_A:       FormatUPCA,
	gozxing.BarcodeFormat_UPC_E:       FormatUPCE,
}

var zxingMetadata = map[gozxing.ResultMetadataType]MetadataKind{
	gozxing.ResultMetadataType_OTHER:                      MetadataOther,
	gozxing.ResultMetadataType_ORIENTATION:                MetadataOrientation,
	gozxing.ResultMetadataType_BYTE_SEGMENTS:              MetadataByteSegments,
	gozxing.ResultMetadataType_ERROR_CORRECTION_LEVEL:     MetadataErrorCorrectionLevel,
	gozxing.ResultMetadataType_ISSUE_NUMBER:               MetadataIssueNumber,
	gozxing.ResultMetadataType_SUGGESTED_PRICE:            MetadataSuggestedPrice,
	gozxing.ResultMetadataType_POSSIBLE_COUNTRY:           MetadataPossibleCountry,
	gozxing.ResultMetadataType_UPC_EAN_EXTENSION:          MetadataUPCEANExtension,
	gozxing.ResultMetadataType_PDF417_EXTRA_METADATA:      MetadataPDF417ExtraMetadata,
	gozxing.ResultMetadataType_STRUCTURED_APPEND_SEQUENCE: MetadataStructuredAppendSequence,
	gozxing.ResultMetadataType_STRUCTURED_APPEND_PARITY:   MetadataStructuredAppendParity,
}

// ZXingFormats lists the formats NewZXingDecoder accepts.
func ZXingFormats() []BarcodeFormat {
	return []BarcodeFormat{
		FormatQRCode, FormatDataMatrix, FormatAztec,
		FormatCode128, FormatCode39, FormatCode93, FormatCodabar, FormatITF,
		FormatEAN13, FormatEAN8, FormatUPCA, FormatUPCE, FormatRSS14,
	}
}

// #endregion reader-table

// #region zxing-decoder

// ZXingDecoder decodes in-process with gozxing. Readers are tried in the order
// their formats were given; the first successful read wins.
type ZXingDecoder struct {
	formats []BarcodeFormat
}

// NewZXingDecoder builds a decoder for the given formats.
func NewZXingDecoder(formats ...BarcodeFormat) (*ZXingDecoder, error) {
	if len(formats) == 0 {
		return nil, errors.New("zxing decoder: no formats given")
	}
	for _, f := range formats {
		if _, ok := zxingReaders[f]; !ok {
			return nil, fmt.Errorf("zxing decoder: format %s not supported", f)
		}
	}
	return &ZXingDecoder{formats: formats}, nil
}

// Decode binarizes img with a hybrid binarizer and runs each configured reader.
func (d *ZXingDecoder) Decode(ctx context.Context, img image.Image, hints Hints) (*Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}

	zh := make(map[gozxing.DecodeHintType]interface{})
	if hints.Enabled(HintTryHarder) {
		zh[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	if hints.Enabled(HintPureBarcode) {
		zh[gozxing.DecodeHintType_PURE_BARCODE] = true
	}

	var lastErr error
	for _, f := range d.formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Readers keep per-call state; build a fresh one each time.
		r := zxingReaders[f]()
		res, err := r.Decode(bmp, zh)
		if err != nil {
			lastErr = err
			continue
		}
		return convertZXingResult(res), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNotFound, lastErr)
}

func convertZXingResult(res *gozxing.Result) *Result {
	out := &Result{
		Format: zxingFormats[res.GetBarcodeFormat()],
		Text:   res.GetText(),
	}
	if md := res.GetResultMetadata(); len(md) > 0 {
		out.Metadata = make(map[MetadataKind]string, len(md))
		for k, v := range md {
			if kind, ok := zxingMetadata[k]; ok {
				out.Metadata[kind] = fmt.Sprint(v)
			}
		}
	}
	return out
}

// #endregion zxing-decoder
