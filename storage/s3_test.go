package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

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

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.input = params

	b, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.body = b

	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sirc-2024-03-01.zip")
	require.NoError(t, os.WriteFile(p, []byte("PK"), 0o600))

	fake := &fakeS3{}
	u := NewS3UploaderWithClient(fake, "exports", "/sirene/daily/")

	key, err := u.Upload(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "sirene/daily/sirc-2024-03-01.zip", key)
	assert.Equal(t, "exports", aws.ToString(fake.input.Bucket))
	assert.Equal(t, key, aws.ToString(fake.input.Key))
	assert.Equal(t, int64(2), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "application/zip", aws.ToString(fake.input.ContentType))
	assert.Equal(t, []byte("PK"), fake.body)
}

func TestUploadWithoutPrefix(t *testing.T) {
	u := NewS3UploaderWithClient(&fakeS3{}, "exports", "")

	assert.Equal(t, "a.zip", u.Key("/tmp/out/a.zip"))
}

func TestUploadErrors(t *testing.T) {
	u := NewS3UploaderWithClient(&fakeS3{}, "exports", "")

	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	p := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(p, []byte("PK"), 0o600))

	denied := errors.New("access denied")
	u = NewS3UploaderWithClient(&fakeS3{err: denied}, "exports", "")

	_, err = u.Upload(context.Background(), p)
	assert.ErrorIs(t, err, denied)
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), Config{})
	assert.Error(t, err)
}
