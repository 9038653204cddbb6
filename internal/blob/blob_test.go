package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", " a", "../x", "a/b", `a\b`, ".."} {
		if ValidateKey(key) == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
	if err := ValidateKey("0f8c.png"); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()

	info, err := store.Write(ctx, "a.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if info.Size != 5 || info.Key != "a.txt" {
		t.Fatalf("unexpected info: %+v", info)
	}

	rc, err := store.Read(ctx, "a.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}

	if errDelete := store.Delete(ctx, "a.txt"); errDelete != nil {
		t.Fatalf("Delete: %v", errDelete)
	}
	if errDelete := store.Delete(ctx, "a.txt"); errDelete != nil {
		t.Fatalf("second Delete: %v", errDelete)
	}
	if _, errRead := store.Read(ctx, "a.txt"); !errors.Is(errRead, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errRead)
	}
}

func TestLocalStorageCancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, errWrite := store.Write(ctx, "a.txt", strings.NewReader("hello")); !errors.Is(errWrite, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", errWrite)
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakeUploader struct {
	objects map[string][]byte
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	return &s3manager.UploadOutput{}, nil
}

func TestS3StorageRoundTrip(t *testing.T) {
	objects := map[string][]byte{}
	store := NewS3StorageWithClient(&fakeS3{objects: objects}, &fakeUploader{objects: objects}, "bucket", "/media/")
	ctx := context.Background()

	info, err := store.Write(ctx, "v.mp4", strings.NewReader("0123456789"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if info.Size != 10 {
		t.Fatalf("expected size 10, got %d", info.Size)
	}
	if _, ok := objects["media/v.mp4"]; !ok {
		t.Fatalf("expected prefixed object key, got %v", objects)
	}

	rc, err := store.Read(ctx, "v.mp4")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	_ = rc.Close()

	if errDelete := store.Delete(ctx, "v.mp4"); errDelete != nil {
		t.Fatalf("Delete: %v", errDelete)
	}
	if _, errRead := store.Read(ctx, "v.mp4"); !errors.Is(errRead, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errRead)
	}
}
