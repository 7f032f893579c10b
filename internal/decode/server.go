package decode

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
type decoderServiceServer interface {
	decode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var decoderServiceDesc = grpc.ServiceDesc{
	ServiceName: decoderServiceName,
	HandlerType: (*decoderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decode", Handler: decodeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blackbox/v1/decoder.proto",
}

func decodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(decoderServiceServer).decode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: decodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(decoderServiceServer).decode(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service-desc

// #region server
type decoderServer struct {
	dec    Decoder
	logger *zap.Logger
}

// RegisterDecoderServer exposes d on s as blackbox.v1.DecoderService.
func RegisterDecoderServer(s grpc.ServiceRegistrar, d Decoder, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.RegisterService(&decoderServiceDesc, &decoderServer{dec: d, logger: logger})
}

func (s *decoderServer) decode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	img, hints, err := decodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.dec.Decode(ctx, img, hints)
	if err != nil {
		s.logger.Debug("decode failed", zap.Error(err))
		if errors.Is(err, ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeResponse(res), nil
}

// #endregion server
