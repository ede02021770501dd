// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Captcha Solver Mock --

// MockCaptchaSolver mocks schemas.CaptchaSolver.
type MockCaptchaSolver struct {
	mock.Mock
}

func (m *MockCaptchaSolver) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	args := m.Called(ctx, siteKey, pageURL)
	return args.String(0), args.Error(1)
}

func (m *MockCaptchaSolver) SolveHCaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	args := m.Called(ctx, siteKey, pageURL)
	return args.String(0), args.Error(1)
}

func (m *MockCaptchaSolver) Balance(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

// -- Semantic Mapper Mock --

// MockSemanticMapper mocks schemas.SemanticMapper.
type MockSemanticMapper struct {
	mock.Mock
}

func (m *MockSemanticMapper) MapFields(ctx context.Context, profile map[string]interface{}, fields []schemas.FieldDescriptor) (*schemas.SemanticMapping, error) {
	args := m.Called(ctx, profile, fields)
	var res *schemas.SemanticMapping
	if v := args.Get(0); v != nil {
		res = v.(*schemas.SemanticMapping)
	}
	return res, args.Error(1)
}

// -- Persistence Mocks --

// MockAttemptStore mocks schemas.AttemptStore.
type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) SaveAttempt(ctx context.Context, attempt *schemas.ApplicationAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptStore) ListAttempts(ctx context.Context, limit int) ([]schemas.ApplicationAttempt, error) {
	args := m.Called(ctx, limit)
	var res []schemas.ApplicationAttempt
	if v := args.Get(0); v != nil {
		res = v.([]schemas.ApplicationAttempt)
	}
	return res, args.Error(1)
}

// MockArtifactSink mocks schemas.ArtifactSink.
type MockArtifactSink struct {
	mock.Mock
}

func (m *MockArtifactSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, name, contentType, data)
	return args.String(0), args.Error(1)
}
