package mocks

import (
	"context"
	"io"

	"simodapi/internal/model"
	"simodapi/internal/service"
	"simodapi/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockDiscoveryService struct {
	mock.Mock
}

func (m *MockDiscoveryService) Create(ctx context.Context, in service.CreateDiscoveryInput) (*model.Discovery, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Discovery), args.Error(1)
}

func (m *MockDiscoveryService) Get(ctx context.Context, id string) (*model.Discovery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Discovery), args.Error(1)
}

func (m *MockDiscoveryService) List(ctx context.Context, limit, offset int) (*service.DiscoveryListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DiscoveryListResult), args.Error(1)
}

func (m *MockDiscoveryService) OpenResult(ctx context.Context, id, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, id, filename)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockDiscoveryService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDiscoveryService) Wait() {
	m.Called()
}
