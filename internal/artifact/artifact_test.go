package artifact

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"contagion/internal/config"
)

func TestDirPutAndGet(t *testing.T) {
	ws := t.TempDir()
	var cfg config.Artifacts
	cfg.Driver = "fs"
	cfg.Dir = "artifacts"
	store, err := Open(context.Background(), ws, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	loc, err := store.Put(ctx, Key("run-1", "report.txt"), []byte("first"), "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if loc != filepath.Join(ws, "artifacts", "run-1", "report.txt") {
		t.Fatalf("unexpected location %s", loc)
	}
	if _, err := store.Put(ctx, Key("run-1", "report.txt"), []byte("second"), ""); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := store.Get(ctx, "run-1/report.txt")
	if err != nil || string(data) != "second" {
		t.Fatalf("get = %q, %v", data, err)
	}
	for _, bad := range []string{"", "../escape", "/abs"} {
		if _, err := store.Put(ctx, bad, nil, ""); err == nil {
			t.Fatalf("expected key %q to be rejected", bad)
		}
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	store, err := Open(context.Background(), t.TempDir(), config.Artifacts{Driver: "none"})
	if err != nil || store != nil {
		t.Fatalf("expected no store, got %v %v", store, err)
	}
	if _, err := Open(context.Background(), t.TempDir(), config.Artifacts{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

// objectServer answers the PUT and GET requests of the S3 client.
type objectServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (o *objectServer) RoundTrip(req *http.Request) (*http.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		o.objects[key] = body
		o.types[key] = req.Header.Get("Content-Type")
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
	case http.MethodGet:
		if body, ok := o.objects[key]; ok {
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
				"Content-Type": {o.types[key]},
				"ETag":         {"\"etag\""},
			}}, nil
		}
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: 501, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func TestS3PutAndGet(t *testing.T) {
	srv := &objectServer{objects: make(map[string][]byte), types: make(map[string]string)}
	store, err := NewS3(context.Background(), S3Config{
		Bucket:          "reports",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		Prefix:          "contagion",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: srv}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	if err != nil {
		t.Fatalf("new s3: %v", err)
	}
	ctx := context.Background()
	loc, err := store.Put(ctx, Key("run-1", "report.txt"), []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if loc != "s3://reports/contagion/run-1/report.txt" {
		t.Fatalf("unexpected location %s", loc)
	}
	if got := string(srv.objects["reports/contagion/run-1/report.txt"]); got != "hello" {
		t.Fatalf("stored %q", got)
	}
	data, err := store.Get(ctx, Key("run-1", "report.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("get = %q, %v", data, err)
	}
	if _, err := store.Get(ctx, Key("run-2", "report.txt")); err == nil {
		t.Fatalf("expected missing object error")
	}
	if _, err := NewS3(ctx, S3Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
