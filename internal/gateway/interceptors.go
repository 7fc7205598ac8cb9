package gateway

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// callLevel is the log level for a finished WebAPI call. Lookups of missing
// entities are routine for a marketplace and stay at info.
func callLevel(code codes.Code) zapcore.Level {
	switch code {
	case codes.OK, codes.NotFound:
		return zapcore.InfoLevel
	case codes.Internal, codes.Unknown:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// LoggingUnary logs one line per WebAPI operation. Payloads carry credentials
// and session handles and are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		if ce := log.Check(callLevel(code), "webapi call"); ce != nil {
			fields := []zap.Field{
				zap.String("op", opName(info.FullMethod)),
				zap.Stringer("code", code),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", peerAddr(ctx)),
			}
			if err != nil {
				fields = append(fields, zap.String("reason", status.Convert(err).Message()))
			}
			ce.Write(fields...)
		}
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal for that call only.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				op := opName(info.FullMethod)
				log.Error("webapi handler panic",
					zap.String("op", op),
					zap.String("peer", peerAddr(ctx)),
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "%s failed", op)
			}
		}()
		return next(ctx, req)
	}
}

// opName strips the service prefix: "/allegro.webapi.v1.WebAPI/doShowUser" -> "doShowUser".
func opName(fullMethod string) string {
	return fullMethod[strings.LastIndexByte(fullMethod, '/')+1:]
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}
