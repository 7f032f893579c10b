package decode

import (
	"errors"
	"fmt"
)

// #region metadata-kind

// MetadataKind enumerates result metadata a fixture may assert on.
type MetadataKind string

const (
	MetadataOther                    MetadataKind = "OTHER"
	MetadataOrientation              MetadataKind = "ORIENTATION"
	MetadataByteSegments             MetadataKind = "BYTE_SEGMENTS"
	MetadataErrorCorrectionLevel     MetadataKind = "ERROR_CORRECTION_LEVEL"
	MetadataIssueNumber              MetadataKind = "ISSUE_NUMBER"
	MetadataSuggestedPrice           MetadataKind = "SUGGESTED_PRICE"
	MetadataPossibleCountry          MetadataKind = "POSSIBLE_COUNTRY"
	MetadataUPCEANExtension          MetadataKind = "UPC_EAN_EXTENSION"
	MetadataPDF417ExtraMetadata      MetadataKind = "PDF417_EXTRA_METADATA"
	MetadataStructuredAppendSequence MetadataKind = "STRUCTURED_APPEND_SEQUENCE"
	MetadataStructuredAppendParity   MetadataKind = "STRUCTURED_APPEND_PARITY"
)

// MetadataKinds lists every kind in declaration order. Comparisons walk this order.
var MetadataKinds = []MetadataKind{
	MetadataOther,
	MetadataOrientation,
	MetadataByteSegments,
	MetadataErrorCorrectionLevel,
	MetadataIssueNumber,
	MetadataSuggestedPrice,
	MetadataPossibleCountry,
	MetadataUPCEANExtension,
	MetadataPDF417ExtraMetadata,
	MetadataStructuredAppendSequence,
	MetadataStructuredAppendParity,
}

// #endregion metadata-kind

// #region metadata-lookup

// ErrUnknownMetadataKey is returned for metadata keys outside the fixed set.
var ErrUnknownMetadataKey = errors.New("unknown metadata key")

var metadataByName = func() map[string]MetadataKind {
	m := make(map[string]MetadataKind, len(MetadataKinds))
	for _, k := range MetadataKinds {
		m[string(k)] = k
	}
	return m
}()

// ParseMetadataKind resolves a fixture key to its MetadataKind. Keys are case-sensitive.
func ParseMetadataKind(name string) (MetadataKind, error) {
	k, ok := metadataByName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetadataKey, name)
	}
	return k, nil
}

// #endregion metadata-lookup
