package generation

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type generateFunc func(fields map[string]*structpb.Value) (*structpb.Struct, error)

func startModelService(t *testing.T, fn generateFunc) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "greenwatch.generation.v1.Generator",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Generate",
			Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := &structpb.Struct{}
				if err := dec(req); err != nil {
					return nil, err
				}
				return fn(req.GetFields())
			},
		}},
	}, struct{}{})
	healthpb.RegisterHealthServer(srv, health.NewServer())

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func TestGRPCBackendGenerate(t *testing.T) {
	t.Parallel()

	addr := startModelService(t, func(fields map[string]*structpb.Value) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]any{
			"ok":   true,
			"text": "echo: " + fields["prompt"].GetStringValue(),
		})
	})

	b, err := NewGRPC(GRPCConfig{Address: addr, ModelName: "remote-test"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Probe(context.Background()))
	assert.True(t, b.IsLoaded())
	assert.False(t, b.OnDevice())

	r := b.Generate(context.Background(), "hello", DefaultMaxTokens, DefaultTemperature)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "echo: hello", r.Text)
	assert.Equal(t, "remote-test", r.ModelName)
}

func TestGRPCBackendReportedFailure(t *testing.T) {
	t.Parallel()

	addr := startModelService(t, func(map[string]*structpb.Value) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]any{"ok": false, "error": "out of memory"})
	})

	b, err := NewGRPC(GRPCConfig{Address: addr}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	r := b.Generate(context.Background(), "hello", DefaultMaxTokens, DefaultTemperature)
	assert.False(t, r.OK)
	assert.Equal(t, "out of memory", r.Error)
}

func TestGRPCBackendStatusErrors(t *testing.T) {
	t.Parallel()

	addr := startModelService(t, func(map[string]*structpb.Value) (*structpb.Struct, error) {
		return nil, status.Error(codes.DeadlineExceeded, "slow")
	})

	b, err := NewGRPC(GRPCConfig{Address: addr}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	r := b.Generate(context.Background(), "hello", DefaultMaxTokens, DefaultTemperature)
	assert.False(t, r.OK)
	assert.Equal(t, "LLM service timed out", r.Error)
}

func TestNewGRPCFailsFastWhenUnreachable(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	_, err = NewGRPC(GRPCConfig{Address: addr, ConnectTimeout: 200 * time.Millisecond}, nil)
	assert.Error(t, err)
}
