package mocks

import (
	"context"
	"io"

	"simodapi/internal/simod"

	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) PrepareWorkspace(requestID string, eventLog io.Reader, eventLogExt string, configuration io.Reader, configExt string) (*simod.Workspace, error) {
	args := m.Called(requestID, eventLog, eventLogExt, configuration, configExt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simod.Workspace), args.Error(1)
}

func (m *MockRunner) Run(ctx context.Context, ws *simod.Workspace) (simod.RunOutput, error) {
	args := m.Called(ctx, ws)
	return args.Get(0).(simod.RunOutput), args.Error(1)
}
