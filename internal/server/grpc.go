package server

import (
	"FeeLedger/internal/observability"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxCommandBytes bounds the JSON body of an HTTP command submission.
const maxCommandBytes = 1 << 20

// GRPCServer wraps the gRPC server and the HTTP gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	ledger        LedgerServer
	healthChecker *observability.HealthChecker
	gatherer      prometheus.Gatherer
	logger        zerolog.Logger
}

// ServerDeps holds everything the servers need.
type ServerDeps struct {
	Ledger        LedgerServer
	HealthChecker *observability.HealthChecker
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// NewGRPCServer creates the gRPC server with the ledger, health and
// reflection services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&ServiceDesc, deps.Ledger)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &GRPCServer{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		ledger:        deps.Ledger,
		healthChecker: deps.HealthChecker,
		gatherer:      gatherer,
		logger:        deps.Logger,
	}
}

// SetServing flips the gRPC health status of the ledger service. It follows
// the readiness of the HealthChecker.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus(ServiceName, st)
}

// StartGRPC serves gRPC until ctx is cancelled.
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway serves the HTTP/JSON routes, health probes and metrics
// until ctx is cancelled.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler: gateway routes under /v1, probes and
// /metrics.
func (s *GRPCServer) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method, pattern string
		call            unaryMethod
	}{
		{"GET", "/v1/balances/{address}", LedgerServer.GetBalance},
		{"GET", "/v1/allowances/{owner}/{spender}", LedgerServer.GetAllowance},
		{"GET", "/v1/token", LedgerServer.GetTokenInfo},
		{"GET", "/v1/fees/ratio", LedgerServer.GetFeeRatio},
		{"GET", "/v1/fees/pool", LedgerServer.GetFeePool},
		{"GET", "/v1/accounts/{address}", LedgerServer.GetAccountStatus},
		{"GET", "/v1/accounts/{address}/transfers", LedgerServer.ListTransfers},
		{"GET", "/v1/accounts/{address}/journals", LedgerServer.ListJournals},
		{"GET", "/v1/events/{sequence}", LedgerServer.GetEvent},
		{"GET", "/v1/admin/integrity", LedgerServer.VerifyIntegrity},
		{"POST", "/v1/admin/snapshots", LedgerServer.TakeSnapshot},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, s.gatewayHandler(mux, r.call)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}
	if err := mux.HandlePath("POST", "/v1/commands/{type}", s.submitHandler(mux)); err != nil {
		return nil, fmt.Errorf("register command route: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	httpMux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	httpMux.Handle("/", mux)
	return httpMux, nil
}

// gatewayHandler builds the request struct from path and query parameters
// and calls the gRPC method in process.
func (s *GRPCServer) gatewayHandler(mux *runtime.ServeMux, call unaryMethod) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		ctx := r.Context()
		_, outbound := runtime.MarshalerForRequest(mux, r)

		fields := make(map[string]any)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		for k, v := range pathParams {
			fields[k] = v
		}
		in, err := structpb.NewStruct(fields)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Error(codes.InvalidArgument, err.Error()))
			return
		}

		resp, err := call(s.ledger, ctx, in)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, resp)
	}
}

// submitHandler passes the raw JSON body through as the command payload.
func (s *GRPCServer) submitHandler(mux *runtime.ServeMux) runtime.HandlerFunc {
	ls, ok := s.ledger.(*ledgerService)
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		ctx := r.Context()
		_, outbound := runtime.MarshalerForRequest(mux, r)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Errorf(codes.InvalidArgument, "read body: %v", err))
			return
		}

		var resp *structpb.Struct
		if ok {
			resp, err = ls.submitJSON(ctx, pathParams["type"], body)
		} else {
			var cmd structpb.Struct
			if err = cmd.UnmarshalJSON(body); err != nil {
				err = status.Errorf(codes.InvalidArgument, "command: %v", err)
			} else {
				resp, err = s.ledger.Submit(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
					"type":    structpb.NewStringValue(pathParams["type"]),
					"command": structpb.NewStructValue(&cmd),
				}})
			}
		}
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, resp)
	}
}
