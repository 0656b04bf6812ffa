package mocks

import (
	"context"

	"simodapi/internal/model"
	"simodapi/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockDiscoveryRepository struct {
	mock.Mock
}

func (m *MockDiscoveryRepository) Create(ctx context.Context, d *model.Discovery) (*model.Discovery, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Discovery), args.Error(1)
}

func (m *MockDiscoveryRepository) FindByID(ctx context.Context, id string) (*model.Discovery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Discovery), args.Error(1)
}

func (m *MockDiscoveryRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Discovery], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Discovery]), args.Error(1)
}

func (m *MockDiscoveryRepository) UpdateStatus(ctx context.Context, d *model.Discovery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDiscoveryRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
