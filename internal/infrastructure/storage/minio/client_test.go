package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error {
	return m.Called(ctx, bucketName, config).Error(0)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func (m *MockMinIOAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	return nil, args.Error(1)
}

func makeURL(s string) *url.URL {
	u, _ := url.Parse(s)
	return u
}

type ExportStoreTestSuite struct {
	suite.Suite
	api   *MockMinIOAPI
	store *ExportStore
	ctx   context.Context
}

func (s *ExportStoreTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	s.store = NewExportStoreWithClient(s.api, &MinIOConfig{ExportBucket: "exports"}, logging.NewNopLogger())
	s.ctx = context.Background()
}

func (s *ExportStoreTestSuite) TestApplyDefaults() {
	cfg := &MinIOConfig{}
	applyDefaults(cfg)
	s.Equal("us-east-1", cfg.Region)
	s.Equal("reminder-exports", cfg.ExportBucket)
	s.Equal(30, cfg.ExportRetention)
	s.Equal(24*time.Hour, cfg.PresignExpiry)
}

func (s *ExportStoreTestSuite) TestEnsureBucket_Creates() {
	s.api.On("BucketExists", s.ctx, "exports").Return(false, nil)
	s.api.On("MakeBucket", s.ctx, "exports", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
	s.api.On("SetBucketLifecycle", s.ctx, "exports", mock.MatchedBy(func(c *lifecycle.Configuration) bool {
		return len(c.Rules) == 1 && c.Rules[0].Expiration.Days == 30
	})).Return(fmt.Errorf("not supported"))

	s.NoError(s.store.EnsureBucket(s.ctx))
	s.api.AssertExpectations(s.T())
}

func (s *ExportStoreTestSuite) TestEnsureBucket_Unavailable() {
	s.api.On("BucketExists", s.ctx, "exports").Return(false, fmt.Errorf("connection refused"))
	err := s.store.EnsureBucket(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func (s *ExportStoreTestSuite) TestPut() {
	data := []byte("BEGIN:VCALENDAR")
	s.api.On("PutObject", s.ctx, "exports", "deadlines/acme.ics", mock.Anything, int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/calendar"}).Return(minio.UploadInfo{Key: "deadlines/acme.ics"}, nil)

	s.NoError(s.store.Put(s.ctx, "deadlines/acme.ics", data, "text/calendar"))
	s.True(errors.IsValidation(s.store.Put(s.ctx, "", data, "text/calendar")))
}

func (s *ExportStoreTestSuite) TestPut_Failure() {
	s.api.On("PutObject", s.ctx, "exports", "x.ics", mock.Anything, int64(1), mock.Anything).
		Return(minio.UploadInfo{}, fmt.Errorf("access denied"))
	err := s.store.Put(s.ctx, "x.ics", []byte("x"), "text/calendar")
	s.True(errors.IsCode(err, errors.ErrCodeExternalService))
}

func (s *ExportStoreTestSuite) TestPresignedGetURL_DefaultExpiry() {
	s.api.On("PresignedGetObject", s.ctx, "exports", "x.ics", 24*time.Hour, url.Values(nil)).
		Return(makeURL("https://minio.local/exports/x.ics?X-Amz-Signature=abc"), nil)

	u, err := s.store.PresignedGetURL(s.ctx, "x.ics", 0)
	s.NoError(err)
	s.Contains(u, "X-Amz-Signature=abc")
}

func (s *ExportStoreTestSuite) TestPresignedGetURL_Failure() {
	s.api.On("PresignedGetObject", s.ctx, "exports", "x.ics", time.Hour, url.Values(nil)).Return(nil, fmt.Errorf("bad key"))
	_, err := s.store.PresignedGetURL(s.ctx, "x.ics", time.Hour)
	s.Error(err)
}

func TestExportStoreSuite(t *testing.T) {
	suite.Run(t, new(ExportStoreTestSuite))
}
