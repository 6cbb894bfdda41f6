package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/greenwatch-runner/internal/domain"
)

// GenerateMethod is the full gRPC method name served by the model service.
// Requests and responses are google.protobuf.Struct values carrying the same
// fields as the HTTP contract.
const GenerateMethod = "/greenwatch.generation.v1.Generator/Generate"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errNotServing               = errors.New("model service not serving")
)

// GRPCConfig holds configuration for the gRPC backend.
type GRPCConfig struct {
	Address          string
	ModelName        string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCConfig returns default configuration.
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Address:          "localhost:50051",
		ModelName:        "grpc",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   60 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPCBackend calls a remote model service over gRPC.
type GRPCBackend struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	cfg    GRPCConfig
	logger *slog.Logger
}

// NewGRPC dials the model service and waits until it is ready.
func NewGRPC(cfg GRPCConfig, logger *slog.Logger) (*GRPCBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGRPCConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ModelName == "" {
		cfg.ModelName = def.ModelName
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("create gRPC client for %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("model service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to model service", "address", cfg.Address)

	return &GRPCBackend{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cfg:    cfg,
		logger: logger.With("component", "generation", "backend", "grpc"),
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Probe asks the standard gRPC health service whether the model is serving.
func (b *GRPCBackend) Probe(ctx context.Context) error {
	resp, err := b.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

// IsLoaded reports whether the connection is usable.
func (b *GRPCBackend) IsLoaded() bool {
	switch b.conn.GetState() {
	case connectivity.Shutdown, connectivity.TransientFailure:
		return false
	default:
		return true
	}
}

func (b *GRPCBackend) Name() string { return b.cfg.ModelName }
func (*GRPCBackend) OnDevice() bool  { return false }

// Generate invokes the remote Generate method.
func (b *GRPCBackend) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) domain.GenerationResult {
	start := time.Now()
	r := newResult(b)

	req, err := structpb.NewStruct(map[string]any{
		"prompt":         prompt,
		"max_new_tokens": maxTokens,
		"temperature":    temperature,
	})
	if err != nil {
		return failed(r, start, fmt.Sprintf("encode request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := b.conn.Invoke(ctx, GenerateMethod, req, resp); err != nil {
		b.logger.Warn("Generate RPC failed", "error", err)
		switch status.Code(err) {
		case codes.DeadlineExceeded:
			return failed(r, start, "LLM service timed out")
		case codes.Unavailable:
			return failed(r, start, "No response from LLM service (is the model service running?)")
		default:
			return failed(r, start, fmt.Sprintf("LLM service error: %s", status.Convert(err).Message()))
		}
	}

	fields := resp.GetFields()
	text := fields["text"].GetStringValue()
	if !fields["ok"].GetBoolValue() {
		msg := fields["error"].GetStringValue()
		if msg == "" {
			msg = "LLM service reported failure"
		}
		r = failed(r, start, msg)
		r.Text = text
		return r
	}
	return succeeded(r, start, text)
}

// Close closes the gRPC connection.
func (b *GRPCBackend) Close() error {
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("close gRPC connection: %w", err)
	}
	return nil
}

var _ Backend = (*GRPCBackend)(nil)
