package gcsarchive

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockObjectStore struct {
	PutFunc func(ctx context.Context, bucket, object, contentType string, data []byte) error
	GetFunc func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *mockObjectStore) Put(ctx context.Context, bucket, object, contentType string, data []byte) error {
	return m.PutFunc(ctx, bucket, object, contentType, data)
}

func (m *mockObjectStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	return m.GetFunc(ctx, bucket, object)
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		mimeType string
		want     string
	}{
		{"jpeg", "image/jpeg", "receipts/telegram:1/2024/03/01/abc.jpg"},
		{"upper case", "IMAGE/PNG", "receipts/telegram:1/2024/03/01/abc.png"},
		{"pdf", "application/pdf", "receipts/telegram:1/2024/03/01/abc.pdf"},
		{"unknown", "", "receipts/telegram:1/2024/03/01/abc.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectName("telegram:1", at, "abc", tt.mimeType); got != tt.want {
				t.Errorf("ObjectName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArchiveReceipt(t *testing.T) {
	var gotBucket, gotObject, gotType string
	store := &mockObjectStore{PutFunc: func(_ context.Context, bucket, object, contentType string, data []byte) error {
		gotBucket, gotObject, gotType = bucket, object, contentType
		if string(data) != "jpeg bytes" {
			t.Errorf("unexpected data %q", data)
		}
		return nil
	}}

	a := New(store, "receipts-bucket")
	a.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	a.newID = func() string { return "id-1" }

	uri, err := a.ArchiveReceipt(context.Background(), "telegram:1", []byte("jpeg bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("ArchiveReceipt failed: %v", err)
	}

	if uri != "gs://receipts-bucket/receipts/telegram:1/2024/03/01/id-1.jpg" {
		t.Errorf("uri = %q", uri)
	}
	if gotBucket != "receipts-bucket" || gotObject != "receipts/telegram:1/2024/03/01/id-1.jpg" || gotType != "image/jpeg" {
		t.Errorf("Put(%q, %q, %q)", gotBucket, gotObject, gotType)
	}
}

func TestArchiveReceipt_Error(t *testing.T) {
	store := &mockObjectStore{PutFunc: func(context.Context, string, string, string, []byte) error {
		return errors.New("permission denied")
	}}

	if _, err := New(store, "b").ArchiveReceipt(context.Background(), "telegram:1", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://bucket/path/to/file.jpg", bucket: "bucket", object: "path/to/file.jpg"},
		{uri: "gs://bucket", wantErr: true},
		{uri: "gs://bucket/", wantErr: true},
		{uri: "/tmp/file.jpg", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("ParseURI() = %q, %q", bucket, object)
			}
		})
	}
}

func TestFetchFromGCS(t *testing.T) {
	store := &mockObjectStore{GetFunc: func(_ context.Context, bucket, object string) ([]byte, error) {
		if bucket != "b" || object != "r/x.png" {
			t.Errorf("Get(%q, %q)", bucket, object)
		}
		return []byte("png"), nil
	}}

	data, err := FetchFromGCS(context.Background(), store, "gs://b/r/x.png")
	if err != nil {
		t.Fatalf("FetchFromGCS failed: %v", err)
	}
	if string(data) != "png" {
		t.Errorf("data = %q", data)
	}

	if FilenameFromURI("gs://b/r/x.png") != "x.png" {
		t.Error("FilenameFromURI")
	}
}
