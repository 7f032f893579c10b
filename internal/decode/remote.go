package decode

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire
// The decoder service speaks google.protobuf.Struct in both directions so no
// generated stubs are needed on either side.
//
// Request fields:  image_png (base64 PNG), hints (hint kind -> value)
// Response fields: format, text, metadata (metadata kind -> string)
const (
	decoderServiceName = "blackbox.v1.DecoderService"
	decodeMethod       = "/" + decoderServiceName + "/Decode"
)

// #endregion wire

// #region client-struct
// RemoteDecoder calls a decoder served over gRPC.
type RemoteDecoder struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewRemoteDecoder connects to a decoder service at addr.
func NewRemoteDecoder(addr string, opts ...grpc.DialOption) (*RemoteDecoder, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &RemoteDecoder{conn: conn, cc: conn}, nil
}

// NewRemoteDecoderWithConn creates a RemoteDecoder over an existing connection.
// The caller keeps ownership of cc.
func NewRemoteDecoderWithConn(cc grpc.ClientConnInterface) *RemoteDecoder {
	return &RemoteDecoder{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if this decoder opened it.
func (d *RemoteDecoder) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// #endregion close

// #region decode
// Decode sends img PNG-encoded to the service. A NotFound status maps to ErrNotFound.
func (d *RemoteDecoder) Decode(ctx context.Context, img image.Image, hints Hints) (*Result, error) {
	req, err := encodeRequest(img, hints)
	if err != nil {
		return nil, err
	}

	resp := new(structpb.Struct)
	if err := d.cc.Invoke(ctx, decodeMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, status.Convert(err).Message())
		}
		return nil, fmt.Errorf("decode rpc: %w", err)
	}
	return decodeResponse(resp)
}

// #endregion decode

// #region codec
func encodeRequest(img image.Image, hints Hints) (*structpb.Struct, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	hintFields := make(map[string]*structpb.Value, len(hints))
	for k, v := range hints {
		val, err := structpb.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode hint %s: %w", k, err)
		}
		hintFields[string(k)] = val
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"image_png": structpb.NewStringValue(base64.StdEncoding.EncodeToString(buf.Bytes())),
		"hints":     structpb.NewStructValue(&structpb.Struct{Fields: hintFields}),
	}}, nil
}

func decodeRequest(req *structpb.Struct) (image.Image, Hints, error) {
	raw, err := base64.StdEncoding.DecodeString(req.GetFields()["image_png"].GetStringValue())
	if err != nil {
		return nil, nil, fmt.Errorf("image_png: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("image_png: %w", err)
	}

	hints := Hints{}
	for k, v := range req.GetFields()["hints"].GetStructValue().GetFields() {
		hints[HintKind(k)] = v.AsInterface()
	}
	return img, hints, nil
}

func encodeResponse(res *Result) *structpb.Struct {
	md := make(map[string]*structpb.Value, len(res.Metadata))
	for k, v := range res.Metadata {
		md[string(k)] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"format":   structpb.NewStringValue(string(res.Format)),
		"text":     structpb.NewStringValue(res.Text),
		"metadata": structpb.NewStructValue(&structpb.Struct{Fields: md}),
	}}
}

func decodeResponse(resp *structpb.Struct) (*Result, error) {
	fields := resp.GetFields()
	res := &Result{
		Format: BarcodeFormat(fields["format"].GetStringValue()),
		Text:   fields["text"].GetStringValue(),
	}
	if md := fields["metadata"].GetStructValue().GetFields(); len(md) > 0 {
		res.Metadata = make(map[MetadataKind]string, len(md))
		for k, v := range md {
			kind, err := ParseMetadataKind(k)
			if err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			res.Metadata[kind] = v.GetStringValue()
		}
	}
	return res, nil
}

// #endregion codec
