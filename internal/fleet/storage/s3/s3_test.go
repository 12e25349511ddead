package s3

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/autopeer-io/robofleet/pkg/options"
)

func TestObjectKeys(t *testing.T) {
	if got := robotKey("R7"); got != "robots/R7.json" {
		t.Errorf("robotKey() = %q", got)
	}
	if got := containerKey("R7", "C1"); got != "containers/R7/C1.json" {
		t.Errorf("containerKey() = %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true},
		{"404 without code", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	opts := options.NewS3Options()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if s.bucketName != opts.BucketName {
		t.Errorf("bucketName = %q", s.bucketName)
	}

	opts.Endpoint = "http://bad endpoint"
	if _, err := New(opts); err == nil {
		t.Error("New() must reject an invalid endpoint")
	}
}
