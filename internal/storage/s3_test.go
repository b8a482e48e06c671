package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data := f.objects[*input.Key]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestPutGetDelete(t *testing.T) {
	fake := &fakeS3{}
	st := &Store{cfg: Config{Bucket: "shots"}, client: fake}

	if err := st.Put(context.Background(), "comparisons/x/before.png", []byte("img"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := st.Get(context.Background(), "comparisons/x/before.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "img" {
		t.Errorf("data = %q", data)
	}
	if err := st.Delete(context.Background(), "comparisons/x/before.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := fake.objects["comparisons/x/before.png"]; ok {
		t.Error("object not deleted")
	}
}

func TestUnconfiguredStore(t *testing.T) {
	st := New(Config{})
	if st.Configured() {
		t.Error("store without credentials must not be configured")
	}
	if err := st.Put(context.Background(), "k", nil, "image/png"); err == nil {
		t.Error("put on unconfigured store must fail")
	}
}

func TestPublicURL(t *testing.T) {
	st := New(Config{Endpoint: "https://minio.local/", Bucket: "shots"})
	if got := st.PublicURL("avatars/a.png"); got != "https://minio.local/shots/avatars/a.png" {
		t.Errorf("url = %q", got)
	}

	st2 := New(Config{PublicBaseURL: "https://cdn.pixelproof.app/", Bucket: "shots"})
	if got := st2.PublicURL("avatars/a.png"); got != "https://cdn.pixelproof.app/avatars/a.png" {
		t.Errorf("url = %q", got)
	}
}
