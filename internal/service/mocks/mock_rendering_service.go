package mocks

import (
	"context"

	"quickembed/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockRenderingService struct {
	mock.Mock
}

func (m *MockRenderingService) View(ctx context.Context, id string) ([]byte, *model.Document, error) {
	args := m.Called(ctx, id)
	var doc *model.Document
	if args.Get(1) != nil {
		doc = args.Get(1).(*model.Document)
	}
	if args.Get(0) == nil {
		return nil, doc, args.Error(2)
	}
	return args.Get(0).([]byte), doc, args.Error(2)
}

func (m *MockRenderingService) Embed(ctx context.Context, id string) ([]byte, *model.Document, error) {
	args := m.Called(ctx, id)
	var doc *model.Document
	if args.Get(1) != nil {
		doc = args.Get(1).(*model.Document)
	}
	if args.Get(0) == nil {
		return nil, doc, args.Error(2)
	}
	return args.Get(0).([]byte), doc, args.Error(2)
}
