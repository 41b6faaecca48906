package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/core/service"
)

const stockLedgerService = "ledger.v1.StockLedger"

type AssignmentRequest struct {
	ActorID    string `json:"actor_id"`
	DelegateID string `json:"delegate_id"`
	BenefitID  string `json:"benefit_id"`
	Quantity   int    `json:"quantity"`
}

type AllocationResponse struct {
	Allocation domain.Allocation `json:"allocation"`
}

type DeliverRequest struct {
	ActorID    string           `json:"actor_id"`
	DelegateID string           `json:"delegate_id"`
	BenefitID  string           `json:"benefit_id"`
	Recipient  domain.Recipient `json:"recipient"`
	Notes      string           `json:"notes"`
}

type ReverseDeliveryRequest struct {
	ActorID    string `json:"actor_id"`
	DeliveryID string `json:"delivery_id"`
}

type DeliveryResponse struct {
	Delivery domain.Delivery `json:"delivery"`
}

type GetBenefitRequest struct {
	BenefitID string `json:"benefit_id"`
}

type BenefitResponse struct {
	Benefit domain.Benefit `json:"benefit"`
}

type GetAllocationRequest struct {
	DelegateID string `json:"delegate_id"`
	BenefitID  string `json:"benefit_id"`
}

// StockLedgerServer is the server API for the ledger.v1.StockLedger service.
type StockLedgerServer interface {
	Assign(context.Context, *AssignmentRequest) (*AllocationResponse, error)
	RevokeAssignment(context.Context, *AssignmentRequest) (*AllocationResponse, error)
	Deliver(context.Context, *DeliverRequest) (*DeliveryResponse, error)
	ReverseDelivery(context.Context, *ReverseDeliveryRequest) (*DeliveryResponse, error)
	GetBenefit(context.Context, *GetBenefitRequest) (*BenefitResponse, error)
	GetAllocation(context.Context, *GetAllocationRequest) (*AllocationResponse, error)
}

type GRPCHandler struct {
	svc Services
}

func NewGRPCHandler(svc Services) *GRPCHandler {
	return &GRPCHandler{svc: svc}
}

func (h *GRPCHandler) Assign(ctx context.Context, req *AssignmentRequest) (*AllocationResponse, error) {
	ctx = service.WithActor(ctx, req.ActorID)
	a, err := h.svc.Allocations.Assign(ctx, req.DelegateID, req.BenefitID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AllocationResponse{Allocation: a}, nil
}

func (h *GRPCHandler) RevokeAssignment(ctx context.Context, req *AssignmentRequest) (*AllocationResponse, error) {
	ctx = service.WithActor(ctx, req.ActorID)
	a, err := h.svc.Allocations.RevokeAssignment(ctx, req.DelegateID, req.BenefitID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AllocationResponse{Allocation: a}, nil
}

func (h *GRPCHandler) Deliver(ctx context.Context, req *DeliverRequest) (*DeliveryResponse, error) {
	ctx = service.WithActor(ctx, req.ActorID)
	d, err := h.svc.Deliveries.Deliver(ctx, service.DeliverRequest{
		DelegateID: req.DelegateID,
		BenefitID:  req.BenefitID,
		Recipient:  req.Recipient,
		Notes:      req.Notes,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeliveryResponse{Delivery: d}, nil
}

func (h *GRPCHandler) ReverseDelivery(ctx context.Context, req *ReverseDeliveryRequest) (*DeliveryResponse, error) {
	ctx = service.WithActor(ctx, req.ActorID)
	d, err := h.svc.Deliveries.ReverseDelivery(ctx, req.DeliveryID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeliveryResponse{Delivery: d}, nil
}

func (h *GRPCHandler) GetBenefit(ctx context.Context, req *GetBenefitRequest) (*BenefitResponse, error) {
	b, err := h.svc.Queries.GetBenefit(ctx, req.BenefitID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BenefitResponse{Benefit: b}, nil
}

func (h *GRPCHandler) GetAllocation(ctx context.Context, req *GetAllocationRequest) (*AllocationResponse, error) {
	a, err := h.svc.Queries.GetAllocation(ctx, req.DelegateID, req.BenefitID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AllocationResponse{Allocation: a}, nil
}

func toStatus(err error) error {
	kind := domain.KindOf(err)
	message := domain.MessageOf(err)
	if kind == domain.KindInternal {
		message = "internal error"
	}
	return status.Error(grpcCode(kind), message)
}

func grpcCode(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindConflict:
		return codes.Aborted
	case domain.KindBusy:
		return codes.Unavailable
	case domain.KindLedgerCorruption:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// UnaryLogger logs each call with its status code.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if code == codes.Internal || code == codes.DataLoss {
			logger.Error("grpc request", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}

func RegisterStockLedgerServer(s grpc.ServiceRegistrar, srv StockLedgerServer) {
	s.RegisterService(&stockLedgerServiceDesc, srv)
}

var stockLedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: stockLedgerService,
	HandlerType: (*StockLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Assign", StockLedgerServer.Assign),
		unary("RevokeAssignment", StockLedgerServer.RevokeAssignment),
		unary("Deliver", StockLedgerServer.Deliver),
		unary("ReverseDelivery", StockLedgerServer.ReverseDelivery),
		unary("GetBenefit", StockLedgerServer.GetBenefit),
		unary("GetAllocation", StockLedgerServer.GetAllocation),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/stock_ledger",
}

func unary[Req, Resp any](method string, call func(StockLedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + stockLedgerService + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StockLedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(StockLedgerServer), ctx, req.(*Req))
			})
		},
	}
}

// StockLedgerClient calls the StockLedger service using the JSON codec.
type StockLedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewStockLedgerClient(cc grpc.ClientConnInterface) *StockLedgerClient {
	return &StockLedgerClient{cc: cc}
}

func (c *StockLedgerClient) Assign(ctx context.Context, in *AssignmentRequest, opts ...grpc.CallOption) (*AllocationResponse, error) {
	return invoke[AllocationResponse](ctx, c.cc, "Assign", in, opts)
}

func (c *StockLedgerClient) RevokeAssignment(ctx context.Context, in *AssignmentRequest, opts ...grpc.CallOption) (*AllocationResponse, error) {
	return invoke[AllocationResponse](ctx, c.cc, "RevokeAssignment", in, opts)
}

func (c *StockLedgerClient) Deliver(ctx context.Context, in *DeliverRequest, opts ...grpc.CallOption) (*DeliveryResponse, error) {
	return invoke[DeliveryResponse](ctx, c.cc, "Deliver", in, opts)
}

func (c *StockLedgerClient) ReverseDelivery(ctx context.Context, in *ReverseDeliveryRequest, opts ...grpc.CallOption) (*DeliveryResponse, error) {
	return invoke[DeliveryResponse](ctx, c.cc, "ReverseDelivery", in, opts)
}

func (c *StockLedgerClient) GetBenefit(ctx context.Context, in *GetBenefitRequest, opts ...grpc.CallOption) (*BenefitResponse, error) {
	return invoke[BenefitResponse](ctx, c.cc, "GetBenefit", in, opts)
}

func (c *StockLedgerClient) GetAllocation(ctx context.Context, in *GetAllocationRequest, opts ...grpc.CallOption) (*AllocationResponse, error) {
	return invoke[AllocationResponse](ctx, c.cc, "GetAllocation", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+stockLedgerService+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
