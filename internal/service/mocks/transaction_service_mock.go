package mocks

import (
	"context"

	"ticket-transaction-engine/internal/model"

	"github.com/stretchr/testify/mock"
)

type TransactionServiceMock struct {
	mock.Mock
}

func NewTransactionServiceMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *TransactionServiceMock {
	m := &TransactionServiceMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TransactionServiceMock) CreateTransaction(ctx context.Context, req model.CreateTransactionRequest) (*model.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *TransactionServiceMock) UploadPaymentProof(ctx context.Context, req model.UploadPaymentProofRequest) (*model.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *TransactionServiceMock) AcceptTransaction(ctx context.Context, transactionID, organizerID int64) (*model.Transaction, error) {
	args := m.Called(ctx, transactionID, organizerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *TransactionServiceMock) RejectTransaction(ctx context.Context, transactionID, organizerID int64, reason string) (*model.RollbackResult, error) {
	args := m.Called(ctx, transactionID, organizerID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RollbackResult), args.Error(1)
}

func (m *TransactionServiceMock) GetTransaction(ctx context.Context, transactionID, actorID int64) (*model.Transaction, error) {
	args := m.Called(ctx, transactionID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *TransactionServiceMock) ListUserTransactions(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}
