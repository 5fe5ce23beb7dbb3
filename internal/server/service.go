package server

import (
	"FeeLedger/internal/ingestion"
	"FeeLedger/internal/query"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "feeledger.v1.Ledger"

// LedgerServer is the gRPC surface. Requests and responses are JSON-shaped
// structpb.Struct messages; amounts travel as decimal strings.
type LedgerServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TakeSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)

	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAllowance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTokenInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetFeeRatio(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetFeePool(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccountStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransfers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJournals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyIntegrity(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// ServiceDesc registers a LedgerServer without generated stubs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", LedgerServer.Submit),
		unary("TakeSnapshot", LedgerServer.TakeSnapshot),
		unary("GetBalance", LedgerServer.GetBalance),
		unary("GetAllowance", LedgerServer.GetAllowance),
		unary("GetTokenInfo", LedgerServer.GetTokenInfo),
		unary("GetFeeRatio", LedgerServer.GetFeeRatio),
		unary("GetFeePool", LedgerServer.GetFeePool),
		unary("GetAccountStatus", LedgerServer.GetAccountStatus),
		unary("ListTransfers", LedgerServer.ListTransfers),
		unary("GetEvent", LedgerServer.GetEvent),
		unary("ListJournals", LedgerServer.ListJournals),
		unary("VerifyIntegrity", LedgerServer.VerifyIntegrity),
	},
	Metadata: "feeledger/v1/ledger.proto",
}

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// SnapshotFunc takes a snapshot and returns the sequence it covers.
type SnapshotFunc func(ctx context.Context) (int64, error)

// ledgerService implements LedgerServer on top of the ingest and query
// services.
type ledgerService struct {
	ingest   *ingestion.GRPCIngestService
	queries  *query.QueryService
	snapshot SnapshotFunc
}

// NewLedgerService returns the LedgerServer backed by the given services.
// snapshot may be nil, in which case TakeSnapshot is unimplemented.
func NewLedgerService(ingest *ingestion.GRPCIngestService, queries *query.QueryService, snapshot SnapshotFunc) LedgerServer {
	return &ledgerService{ingest: ingest, queries: queries, snapshot: snapshot}
}

// Submit takes {"type": "<command type>", "command": {...}} and returns once
// the core has committed or rejected the command.
func (s *ledgerService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	eventType := in.GetFields()["type"].GetStringValue()
	if eventType == "" {
		return nil, status.Error(codes.InvalidArgument, "type is required")
	}
	cmd := in.GetFields()["command"].GetStructValue()
	if cmd == nil {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	payload, err := protojson.Marshal(cmd)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "command: %v", err)
	}
	return s.submitJSON(ctx, eventType, payload)
}

func (s *ledgerService) submitJSON(ctx context.Context, eventType string, payload []byte) (*structpb.Struct, error) {
	evt, err := s.ingest.SubmitRaw(ctx, eventType, payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"accepted":   true,
		"command_id": evt.IdempotencyKey(),
		"event_type": evt.EventType().String(),
	})
}

func (s *ledgerService) TakeSnapshot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.snapshot == nil {
		return nil, status.Error(codes.Unimplemented, "snapshots are disabled")
	}
	seq, err := s.snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"sequence": float64(seq)})
}

func (s *ledgerService) GetBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	addr, err := addressField(in, "address")
	if err != nil {
		return nil, err
	}
	return respond(s.queries.GetBalance(ctx, addr))
}

func (s *ledgerService) GetAllowance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := addressField(in, "owner")
	if err != nil {
		return nil, err
	}
	spender, err := addressField(in, "spender")
	if err != nil {
		return nil, err
	}
	return respond(s.queries.GetAllowance(ctx, owner, spender))
}

func (s *ledgerService) GetTokenInfo(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(s.queries.GetTokenInfo(ctx))
}

func (s *ledgerService) GetFeeRatio(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := addressField(in, "caller")
	if err != nil {
		return nil, err
	}
	return respond(s.queries.GetFeeRatio(ctx, caller))
}

func (s *ledgerService) GetFeePool(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(s.queries.GetFeePool(ctx))
}

func (s *ledgerService) GetAccountStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	addr, err := addressField(in, "address")
	if err != nil {
		return nil, err
	}
	return respond(s.queries.GetAccountStatus(ctx, addr))
}

func (s *ledgerService) ListTransfers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	addr, err := addressField(in, "address")
	if err != nil {
		return nil, err
	}
	entries, err := s.queries.GetTransfers(ctx, addr, intField(in, "limit"), optionalInt(in, "before"))
	return respondList("transfers", entries, err)
}

func (s *ledgerService) GetEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	seq := optionalInt(in, "sequence")
	if seq == nil || *seq <= 0 {
		return nil, status.Error(codes.InvalidArgument, "sequence must be positive")
	}
	return respond(s.queries.GetEvent(ctx, *seq))
}

func (s *ledgerService) ListJournals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	addr, err := addressField(in, "address")
	if err != nil {
		return nil, err
	}
	entries, err := s.queries.GetJournalHistory(ctx, addr, intField(in, "limit"), optionalInt(in, "before"))
	return respondList("journals", entries, err)
}

func (s *ledgerService) VerifyIntegrity(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(s.queries.VerifyIntegrity(ctx))
}

// --- helpers ---

func addressField(in *structpb.Struct, name string) (common.Address, error) {
	v := in.GetFields()[name].GetStringValue()
	if !common.IsHexAddress(v) {
		return common.Address{}, status.Errorf(codes.InvalidArgument, "%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

func intField(in *structpb.Struct, name string) int {
	if v := optionalInt(in, name); v != nil {
		return int(*v)
	}
	return 0
}

// optionalInt reads a number field, or a decimal string as sent by the
// HTTP gateway for query parameters.
func optionalInt(in *structpb.Struct, name string) *int64 {
	v, ok := in.GetFields()[name]
	if !ok {
		return nil
	}
	var n int64
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n = int64(k.NumberValue)
	case *structpb.Value_StringValue:
		if _, err := fmt.Sscan(k.StringValue, &n); err != nil {
			return nil
		}
	default:
		return nil
	}
	return &n
}

// toStruct converts a JSON-tagged response into a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func respond[T any](v *T, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(v)
}

func respondList[T any](name string, entries []T, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{name: entries})
}
