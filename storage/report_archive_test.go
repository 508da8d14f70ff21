package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestPutReport(t *testing.T) {
	fake := &fakeS3{}
	archive := newReportArchive(fake, "pos-reports", "/integrity/")
	started := time.Date(2024, 2, 9, 23, 30, 0, 0, time.UTC)

	key, err := archive.PutReport(context.Background(), "run-1", started, []byte(`{"runId":"run-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "integrity/2024/02/09/run-1.json", key)
	assert.Equal(t, "pos-reports", aws.ToString(fake.input.Bucket))
	assert.Equal(t, key, aws.ToString(fake.input.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.input.ContentType))
	assert.JSONEq(t, `{"runId":"run-1"}`, string(fake.body))
}

func TestPutReport_NoPrefix(t *testing.T) {
	archive := newReportArchive(&fakeS3{}, "b", "")
	assert.Equal(t, "2024/02/09/x.json", archive.Key("x", time.Date(2024, 2, 9, 1, 0, 0, 0, time.UTC)))
}

func TestPutReport_Error(t *testing.T) {
	archive := newReportArchive(&fakeS3{err: errors.New("access denied")}, "b", "p")

	_, err := archive.PutReport(context.Background(), "run-2", time.Now(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewReportArchive_RequiresBucket(t *testing.T) {
	_, err := NewReportArchive(context.Background(), Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
