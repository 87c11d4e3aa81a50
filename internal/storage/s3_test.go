package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/OFFIS-RIT/diarygraph/pkg/common"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestSegmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeObjects()
	seg := &common.Segment{
		ID:     "S1",
		People: []*common.Person{{ID: "P1", Name: "Anna"}},
		Events: []*common.Event{{ID: "E1", Title: "Picnic", Participants: []string{"Anna"}}},
	}

	key, err := PutSegment(ctx, client, "user-1", seg)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if key != "segments/user-1/S1.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if client.types[key] != "application/json" {
		t.Fatalf("expected json content type, got %q", client.types[key])
	}

	got, err := GetSegment(ctx, client, key)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.ID != "S1" || len(got.People) != 1 || got.Events[0].Participants[0] != "Anna" {
		t.Fatalf("unexpected segment %+v", got)
	}

	if err := DeleteFile(ctx, client, key); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := GetSegment(ctx, client, key); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound after delete, got %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeObjects()
	seg := &common.Segment{ID: "S1", People: []*common.Person{{ID: "S1/P1", Name: "Anna"}}}

	if err := PutCheckpoint(ctx, client, "user-1", seg); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	key := CheckpointKey("user-1", "S1")
	if key == SegmentKey("user-1", "S1") {
		t.Fatalf("expected checkpoint key apart from segment key, got %q", key)
	}
	got, err := GetSegment(ctx, client, key)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.People[0].ID != "S1/P1" {
		t.Fatalf("expected S1/P1, got %q", got.People[0].ID)
	}
}

func TestGetFileWrapsTransportErrors(t *testing.T) {
	_, err := GetFile(context.Background(), brokenObjects{}, "k")
	if err == nil || errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected a non not-found error, got %v", err)
	}
}

type brokenObjects struct{ *fakeObjects }

func (brokenObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("connection reset")
}

func TestGetSegmentRejectsGarbage(t *testing.T) {
	client := newFakeObjects()
	client.objects["bad"] = []byte("{not json")
	if _, err := GetSegment(context.Background(), client, "bad"); err == nil {
		t.Fatal("expected decode error")
	}
}
