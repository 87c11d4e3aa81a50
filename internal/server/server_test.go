package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/diarygraph/internal/queue"
	mid "github.com/OFFIS-RIT/diarygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/diarygraph/internal/storage"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/store"
	"github.com/OFFIS-RIT/diarygraph/pkg/store/memory"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
)

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePublisher struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakePublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, msg.Body)
	return nil
}

type testEnv struct {
	e       *echo.Echo
	objects *fakeObjects
	pub     *fakePublisher
	mem     *memory.Storage
	tenants []string
}

func newTestEnv() *testEnv {
	env := &testEnv{
		objects: &fakeObjects{objects: make(map[string][]byte)},
		pub:     &fakePublisher{},
		mem:     memory.New(),
	}
	app := &mid.App{
		Queue: env.pub,
		S3:    env.objects,
		Readers: func(userID string) (store.GraphReader, error) {
			env.tenants = append(env.tenants, userID)
			return env.mem, nil
		},
		MasterAPIKey: "master-key",
		MasterUserID: "user-1",
	}

	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Use(mid.AppContextMiddleware(app))
	RegisterRoutes(e)
	env.e = e
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer master-key")
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestSubmitSegment(t *testing.T) {
	env := newTestEnv()
	body := `{"segment":{"original_text":"Picnic with Anna","people":[{"name":"Anna"}],"events":[{"title":"Picnic","participants":["Anna"]}]},"correlation_id":"c-1"}`

	rec := env.do(http.MethodPost, "/api/segments", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		SegmentID     string `json:"segment_id"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.SegmentID == "" || res.CorrelationID != "c-1" {
		t.Fatalf("unexpected response %+v", res)
	}

	if len(env.pub.keys) != 1 || env.pub.keys[0] != queue.SegmentQueue {
		t.Fatalf("expected one message on %s, got %v", queue.SegmentQueue, env.pub.keys)
	}
	var msg queue.QueueSegmentMsg
	if err := json.Unmarshal(env.pub.bodies[0], &msg); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if msg.UserID != "user-1" || msg.SegmentKey != storage.SegmentKey("user-1", res.SegmentID) || msg.Segment != nil {
		t.Fatalf("unexpected message %+v", msg)
	}

	seg, err := storage.GetSegment(context.Background(), env.objects, msg.SegmentKey)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(seg.People) != 1 || !strings.HasPrefix(seg.People[0].ID, res.SegmentID+"/") {
		t.Fatalf("expected stored person with id scoped to %s, got %+v", res.SegmentID, seg.People)
	}
}

func TestSubmitSegmentRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no segment", `{"correlation_id":"c-1"}`},
		{"untitled event", `{"segment":{"events":[{"description":"no title"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			rec := env.do(http.MethodPost, "/api/segments", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if len(env.pub.keys) != 0 || len(env.objects.objects) != 0 {
				t.Fatal("expected nothing stored or queued")
			}
		})
	}
}

func TestSubmitSegmentQueueFailureRemovesPayload(t *testing.T) {
	env := newTestEnv()
	env.pub.err = errors.New("channel closed")

	rec := env.do(http.MethodPost, "/api/segments", `{"segment":{"thoughts":[{"title":"Spring"}]}}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if len(env.objects.objects) != 0 {
		t.Fatalf("expected payload removed, got %d objects", len(env.objects.objects))
	}
}

func TestGetRecord(t *testing.T) {
	env := newTestEnv()
	env.mem.Seed(&common.Person{ID: "G1", Name: "Anna"})

	rec := env.do(http.MethodGet, "/api/records/G1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var res struct {
		Data struct {
			Kind   string         `json:"kind"`
			Record map[string]any `json:"record"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Data.Kind != string(common.KindPerson) || res.Data.Record["id"] != "G1" {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
	if len(env.tenants) != 1 || env.tenants[0] != "user-1" {
		t.Fatalf("expected reader for user-1, got %v", env.tenants)
	}

	if rec := env.do(http.MethodGet, "/api/records/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestGetRecordConnections(t *testing.T) {
	env := newTestEnv()
	err := env.mem.Persist(context.Background(), &common.Segment{
		ID:     "S1",
		People: []*common.Person{{ID: "P1", Name: "Anna"}},
		Events: []*common.Event{{ID: "E1", Title: "Picnic"}},
		Relationships: []common.Relationship{
			{Source: "E1", Target: "P1", Label: common.LabelParticipatedIn},
		},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	rec := env.do(http.MethodGet, "/api/records/E1/connections", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var res struct {
		Data []struct {
			Kind string `json:"kind"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(res.Data) != 1 || res.Data[0].Kind != string(common.KindPerson) {
		t.Fatalf("expected one connected person, got %s", rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/api/records/nope/connections", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest(http.MethodGet, "/api/records/G1", nil)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}
