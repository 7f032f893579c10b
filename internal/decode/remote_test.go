package decode

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers
func startDecoderServer(t *testing.T, d Decoder) *RemoteDecoder {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterDecoderServer(srv, d, nil)
	go srv.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return NewRemoteDecoderWithConn(conn)
}

func grayImage(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// #endregion helpers

// #region round-trip-tests
func TestRemoteDecoder_RoundTrip(t *testing.T) {
	var gotHints Hints
	fake := DecoderFunc(func(_ context.Context, img image.Image, hints Hints) (*Result, error) {
		gotHints = hints
		g := color.GrayModel.Convert(img.At(0, 0)).(color.Gray)
		if g.Y != 0x40 {
			return nil, ErrNotFound
		}
		return &Result{
			Format:   FormatQRCode,
			Text:     "line1\r\nline2",
			Metadata: map[MetadataKind]string{MetadataOrientation: "90"},
		}, nil
	})
	rd := startDecoderServer(t, fake)

	res, err := rd.Decode(context.Background(), grayImage(0x40), Hints{HintTryHarder: true})
	require.NoError(t, err)
	assert.Equal(t, FormatQRCode, res.Format)
	assert.Equal(t, "line1\r\nline2", res.Text)
	assert.Equal(t, "90", res.Metadata[MetadataOrientation])
	assert.True(t, gotHints.Enabled(HintTryHarder))
	assert.False(t, gotHints.Enabled(HintPureBarcode))
}

func TestRemoteDecoder_NotFoundMapsToSentinel(t *testing.T) {
	fake := DecoderFunc(func(context.Context, image.Image, Hints) (*Result, error) {
		return nil, ErrNotFound
	})
	rd := startDecoderServer(t, fake)

	_, err := rd.Decode(context.Background(), grayImage(0), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestRemoteDecoder_InternalErrorIsNotSentinel(t *testing.T) {
	fake := DecoderFunc(func(context.Context, image.Image, Hints) (*Result, error) {
		return nil, errors.New("reader exploded")
	})
	rd := startDecoderServer(t, fake)

	_, err := rd.Decode(context.Background(), grayImage(0), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRemoteDecoder_CloseWithoutOwnedConn(t *testing.T) {
	rd := NewRemoteDecoderWithConn(nil)
	assert.NoError(t, rd.Close())
}

// #endregion round-trip-tests

// #region codec-tests
func TestDecodeResponse_UnknownMetadataKey(t *testing.T) {
	resp := encodeResponse(&Result{
		Format:   FormatQRCode,
		Metadata: map[MetadataKind]string{"BOGUS": "1"},
	})
	_, err := decodeResponse(resp)
	assert.True(t, errors.Is(err, ErrUnknownMetadataKey))
}

// #endregion codec-tests
