package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// #region serve-cmd
func newServeCmd(a *app) *cobra.Command {
	var addr string
	var formats []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the in-process ZXing decoder over gRPC",
		Long: `Starts a gRPC DecoderService backed by the in-process ZXing decoder, so
harnesses elsewhere can use it with BLACKBOX_DECODER_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Serve.Addr
			}
			if len(formats) == 0 {
				formats = a.cfg.Serve.Formats
			}
			parsed := make([]decode.BarcodeFormat, 0, len(formats))
			for _, f := range formats {
				p, err := decode.ParseFormat(f)
				if err != nil {
					return err
				}
				parsed = append(parsed, p)
			}
			dec, err := decode.NewZXingDecoder(parsed...)
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveDecoder(ctx, lis, dec, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to serve.addr)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "formats to decode (defaults to serve.formats)")
	return cmd
}

// serveDecoder serves dec on lis until ctx ends, then stops gracefully.
func serveDecoder(ctx context.Context, lis net.Listener, dec decode.Decoder, logger *zap.Logger) error {
	srv := grpc.NewServer()
	decode.RegisterDecoderServer(srv, dec, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("decoder service listening", zap.String("addr", lis.Addr().String()))
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.GracefulStop()
		return nil
	})
	return g.Wait()
}

// #endregion serve-cmd
