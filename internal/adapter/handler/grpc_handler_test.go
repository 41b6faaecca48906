package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/core/service"
)

func newGRPCClient(t *testing.T, env *testEnv) *StockLedgerClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogger(zap.NewNop())))
	RegisterStockLedgerServer(server, NewGRPCHandler(env.services))
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewStockLedgerClient(conn)
}

func createBenefit(t *testing.T, env *testEnv, stock int) domain.Benefit {
	t.Helper()
	b, err := env.services.Catalog.CreateBenefit(context.Background(), service.CreateBenefitRequest{
		Name: "School kit", Category: "education", InitialStock: stock,
	})
	require.NoError(t, err)
	return b
}

func TestGRPC_AssignDeliverReverse(t *testing.T) {
	env := newTestEnv(t, time.Second)
	client := newGRPCClient(t, env)
	b := createBenefit(t, env, 10)
	ctx := context.Background()

	alloc, err := client.Assign(ctx, &AssignmentRequest{ActorID: "op-1", DelegateID: "d1", BenefitID: b.ID, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, alloc.Allocation.RemainingQuantity)

	delivered, err := client.Deliver(ctx, &DeliverRequest{
		ActorID:    "op-1",
		DelegateID: "d1",
		BenefitID:  b.ID,
		Recipient:  domain.Recipient{Type: domain.RecipientAffiliate, ID: "a1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "op-1", delivered.Delivery.ActorID)
	assert.Equal(t, domain.RecipientAffiliate, delivered.Delivery.Recipient.Type)

	alloc, err = client.GetAllocation(ctx, &GetAllocationRequest{DelegateID: "d1", BenefitID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, alloc.Allocation.RemainingQuantity)

	_, err = client.ReverseDelivery(ctx, &ReverseDeliveryRequest{DeliveryID: delivered.Delivery.ID})
	require.NoError(t, err)

	alloc, err = client.RevokeAssignment(ctx, &AssignmentRequest{DelegateID: "d1", BenefitID: b.ID, Quantity: 4})
	require.NoError(t, err)
	assert.True(t, alloc.Allocation.IsZero())

	got, err := client.GetBenefit(ctx, &GetBenefitRequest{BenefitID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 10, got.Benefit.UnassignedStock)
}

func TestGRPC_StatusCodes(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond)
	client := newGRPCClient(t, env)
	b := createBenefit(t, env, 1)
	ctx := context.Background()

	_, err := client.GetBenefit(ctx, &GetBenefitRequest{BenefitID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Assign(ctx, &AssignmentRequest{DelegateID: "d1", BenefitID: b.ID, Quantity: 2})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.Assign(ctx, &AssignmentRequest{DelegateID: "d1", BenefitID: b.ID, Quantity: -1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.ReverseDelivery(ctx, &ReverseDeliveryRequest{DeliveryID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	unlock, err := env.locker.Lock(ctx, "lock:ledger:"+b.ID+":d1")
	require.NoError(t, err)
	_, err = client.Assign(ctx, &AssignmentRequest{DelegateID: "d1", BenefitID: b.ID, Quantity: 1})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	require.NoError(t, unlock(ctx))

	_, err = client.Assign(ctx, &AssignmentRequest{DelegateID: "d1", BenefitID: b.ID, Quantity: 1})
	assert.NoError(t, err)
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.Aborted, grpcCode(domain.KindConflict))
	assert.Equal(t, codes.DataLoss, grpcCode(domain.KindLedgerCorruption))
	assert.Equal(t, codes.Internal, grpcCode(domain.KindInternal))

	st, ok := status.FromError(toStatus(domain.Internal(assert.AnError, "write failed")))
	require.True(t, ok)
	assert.Equal(t, "internal error", st.Message())
}
