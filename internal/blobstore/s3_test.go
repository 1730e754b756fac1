package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"reaper-go/internal/reaper"
)

type fakeS3 struct {
	objects map[string]string
	deleted []string
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	if f.err != nil {
		return nil, f.err
	}
	return &s3.DeleteObjectOutput{}, nil
}

type fakeUploader struct {
	key  string
	body string
	size int64
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.key = aws.ToString(in.Key)
	f.body = string(data)
	f.size = aws.ToInt64(in.ContentLength)
	return &manager.UploadOutput{}, nil
}

func TestS3BlobStore_DeleteObject(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes prefixed key", func(t *testing.T) {
		client := &fakeS3{}
		b := newS3BlobStore(client, &fakeUploader{}, "media-bucket", "prod/")

		if err := b.DeleteObject(ctx, "media/a/1"); err != nil {
			t.Fatalf("DeleteObject() error = %v", err)
		}
		if len(client.deleted) != 1 || client.deleted[0] != "media-bucket/prod/media/a/1" {
			t.Errorf("deleted = %v, want [media-bucket/prod/media/a/1]", client.deleted)
		}
	})

	t.Run("maps NoSuchKey to ErrBlobNotFound", func(t *testing.T) {
		client := &fakeS3{err: &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}}
		b := newS3BlobStore(client, &fakeUploader{}, "bucket", "")

		err := b.DeleteObject(ctx, "k")
		if !errors.Is(err, reaper.ErrBlobNotFound) {
			t.Errorf("DeleteObject() error = %v, want ErrBlobNotFound", err)
		}
	})

	t.Run("other errors are returned", func(t *testing.T) {
		client := &fakeS3{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}}
		b := newS3BlobStore(client, &fakeUploader{}, "bucket", "")

		err := b.DeleteObject(ctx, "k")
		if err == nil || errors.Is(err, reaper.ErrBlobNotFound) {
			t.Errorf("DeleteObject() error = %v, want access error", err)
		}
	})
}

func TestS3BlobStore_PutObject(t *testing.T) {
	up := &fakeUploader{}
	b := newS3BlobStore(&fakeS3{}, up, "bucket", "prod")

	if err := b.PutObject(context.Background(), "media/a/1", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if up.key != "prod/media/a/1" {
		t.Errorf("uploaded key = %q, want %q", up.key, "prod/media/a/1")
	}
	if up.body != "hello" || up.size != 5 {
		t.Errorf("uploaded body = %q size %d, want %q size 5", up.body, up.size, "hello")
	}
}

func TestS3BlobStore_GetObject(t *testing.T) {
	ctx := context.Background()

	t.Run("reads prefixed key", func(t *testing.T) {
		client := &fakeS3{objects: map[string]string{"bucket/prod/media/a/1": "jpeg"}}
		b := newS3BlobStore(client, &fakeUploader{}, "bucket", "prod")

		rc, err := b.GetObject(ctx, "media/a/1")
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "jpeg" {
			t.Errorf("GetObject() body = %q, want %q", data, "jpeg")
		}
	})

	t.Run("missing key is ErrBlobNotFound", func(t *testing.T) {
		b := newS3BlobStore(&fakeS3{}, &fakeUploader{}, "bucket", "")
		if _, err := b.GetObject(ctx, "media/a/1"); !errors.Is(err, reaper.ErrBlobNotFound) {
			t.Errorf("GetObject() error = %v, want ErrBlobNotFound", err)
		}
	})

	t.Run("other errors are returned", func(t *testing.T) {
		client := &fakeS3{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}}
		b := newS3BlobStore(client, &fakeUploader{}, "bucket", "")
		_, err := b.GetObject(ctx, "k")
		if err == nil || errors.Is(err, reaper.ErrBlobNotFound) {
			t.Errorf("GetObject() error = %v, want access error", err)
		}
	})
}
