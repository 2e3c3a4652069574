package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) RequestCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeResponse), args.Error(1)
}

func (m *MockPaymentGateway) RequestPayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutResponse), args.Error(1)
}
