package scanner

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/scansafe/internal/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetCachedProduct(ctx context.Context, barcode string) (*model.ProductRecord, error) {
	args := m.Called(ctx, barcode)
	if rec := args.Get(0); rec != nil {
		return rec.(*model.ProductRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) UpsertProduct(ctx context.Context, record *model.ProductRecord, ttl time.Duration) (*model.ProductRecord, error) {
	args := m.Called(ctx, record, ttl)
	switch rec := args.Get(0).(type) {
	case *model.ProductRecord:
		return rec, args.Error(1)
	case func(*model.ProductRecord) *model.ProductRecord:
		return rec(record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) RecentScans(ctx context.Context, limit int) ([]model.ScanLogEntry, error) {
	args := m.Called(ctx, limit)
	if entries := args.Get(0); entries != nil {
		return entries.([]model.ScanLogEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Lookup(ctx context.Context, barcode string) (*model.ProductRecord, error) {
	args := m.Called(ctx, barcode)
	if rec := args.Get(0); rec != nil {
		return rec.(*model.ProductRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, product *model.ProductRecord, userContext map[string]any) (*model.SafetyVerdict, error) {
	args := m.Called(ctx, product, userContext)
	if v := args.Get(0); v != nil {
		return v.(*model.SafetyVerdict), args.Error(1)
	}
	return nil, args.Error(1)
}
