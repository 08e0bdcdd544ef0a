package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voxpro/internal/config"
	"voxpro/internal/models"
)

func sampleRecords() []models.Record {
	base := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	inputs := []string{"what time is it", "weather in london", "play yesterday"}

	var recs []models.Record
	for i, in := range inputs {
		ts := base.Add(time.Duration(i) * time.Minute)
		recs = append(recs, models.Record{
			ID:        NewID(ts),
			Timestamp: ts,
			Input:     in,
			Response:  "response " + in,
			Command:   "time",
			Success:   i%2 == 0,
			Source:    models.SourceText,
		})
	}
	return recs
}

func TestNewIDSortsByTime(t *testing.T) {
	early := NewID(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewID(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Len(t, early, 26)
	assert.Less(t, early, late)
}

func TestFileStoreRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "history.jsonl"))

	none, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	recs := sampleRecords()
	for _, rec := range recs {
		require.NoError(t, store.Append(ctx, rec))
	}

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "play yesterday", got[0].Input)
	assert.Equal(t, "weather in london", got[1].Input)
	assert.True(t, recs[2].Timestamp.Equal(got[0].Timestamp))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQL(ctx, "sqlite://"+filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "sqlite", store.Driver())

	recs := sampleRecords()
	for _, rec := range recs {
		require.NoError(t, store.Append(ctx, rec))
	}

	// ids are primary keys
	assert.Error(t, store.Append(ctx, recs[0]))

	got, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, recs[2].ID, got[0].ID)
	assert.Equal(t, recs[0].ID, got[2].ID)
	assert.Equal(t, recs[0].Success, got[2].Success)
	assert.Equal(t, models.SourceText, got[1].Source)
	assert.True(t, recs[1].Timestamp.Equal(got[1].Timestamp))
}

func TestSplitDSN(t *testing.T) {
	tests := []struct {
		dsn, driver, source string
	}{
		{"postgres://u:p@localhost/voxpro?sslmode=disable", "postgres", "postgres://u:p@localhost/voxpro?sslmode=disable"},
		{"postgresql://localhost/voxpro", "postgres", "postgresql://localhost/voxpro"},
		{"sqlite:///var/lib/voxpro.db", "sqlite", "/var/lib/voxpro.db"},
		{"history.db", "sqlite", "history.db"},
	}
	for _, tt := range tests {
		driver, source := splitDSN(tt.dsn)
		assert.Equal(t, tt.driver, driver, tt.dsn)
		assert.Equal(t, tt.source, source, tt.dsn)
	}
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadBucketOutput)
	return out, args.Error(1)
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func TestS3StoreAppend(t *testing.T) {
	client := &mockS3{}
	rec := sampleRecords()[1]

	var body []byte
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "voice" &&
			aws.ToString(in.Key) == "interactions/20240501_100100_"+rec.ID+".json" &&
			aws.ToString(in.ContentType) == "application/json"
	})).Run(func(args mock.Arguments) {
		body, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	store := newS3Store(client, "voice")
	require.NoError(t, store.Append(context.Background(), rec))

	assert.Contains(t, string(body), `"input":"weather in london"`)
	client.AssertExpectations(t)
}

func TestS3StoreRecentSortsByLastModified(t *testing.T) {
	client := &mockS3{}
	recs := sampleRecords()

	client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String(objectKey(recs[0])), LastModified: aws.Time(recs[0].Timestamp)},
			{Key: aws.String(objectKey(recs[2])), LastModified: aws.Time(recs[2].Timestamp)},
			{Key: aws.String("interactions/"), LastModified: aws.Time(recs[2].Timestamp.Add(time.Hour))},
			{Key: aws.String(objectKey(recs[1])), LastModified: aws.Time(recs[1].Timestamp)},
		},
	}, nil).Once()

	for _, rec := range recs[1:] {
		payload, err := jsonRecord(rec)
		require.NoError(t, err)
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Key) == objectKey(rec)
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(payload))}, nil).Once()
	}

	got, err := newS3Store(client, "voice").Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recs[2].ID, got[0].ID)
	assert.Equal(t, recs[1].ID, got[1].ID)
	client.AssertExpectations(t)
}

func TestS3StoreCheck(t *testing.T) {
	client := &mockS3{}
	client.On("HeadBucket", mock.Anything, mock.Anything).Return(nil, errors.New("forbidden")).Once()

	err := newS3Store(client, "voice").Check(context.Background())
	assert.ErrorContains(t, err, "voice")
}

type countingStore struct {
	mu      sync.Mutex
	appends []models.Record
	fail    bool
	closed  bool
}

func (c *countingStore) Append(_ context.Context, rec models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appends = append(c.appends, rec)
	if c.fail {
		return errors.New("disk full")
	}
	return nil
}

func (c *countingStore) Recent(context.Context, int) ([]models.Record, error) { return nil, nil }

func (c *countingStore) Close() error {
	c.closed = true
	return nil
}

func TestRecorderWritesOncePerRecord(t *testing.T) {
	for _, fail := range []bool{false, true} {
		store := &countingStore{fail: fail}
		rec := NewRecorder(store)

		recs := sampleRecords()
		for _, r := range recs {
			rec.Record(r)
		}
		require.NoError(t, rec.Close())

		assert.True(t, store.closed)
		require.Len(t, store.appends, len(recs))
		for i := range recs {
			assert.Equal(t, recs[i].ID, store.appends[i].ID)
		}
	}
}

func TestRecorderDropsAfterClose(t *testing.T) {
	store := &countingStore{}
	rec := NewRecorder(store)
	rec.Record(models.Record{ID: "before"})
	require.NoError(t, rec.Close())

	assert.NotPanics(t, func() { rec.Record(models.Record{ID: "after"}) })
	assert.NoError(t, rec.Close())

	require.Len(t, store.appends, 1)
	assert.Equal(t, "before", store.appends[0].ID)
}

func TestOpenFallsBackToNop(t *testing.T) {
	cfg := &config.Config{Settings: config.DefaultSettings()}
	store := Open(context.Background(), cfg, nil)
	assert.IsType(t, Nop{}, store)
	assert.False(t, NewRecorder(store).Enabled())
}

func jsonRecord(rec models.Record) ([]byte, error) {
	return json.Marshal(rec)
}
