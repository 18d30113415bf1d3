package objectstore

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{endpoint: "localhost:9000", wantHost: "localhost:9000"},
		{endpoint: "http://localhost:9000", wantHost: "localhost:9000"},
		{endpoint: "https://s3.example.com", wantHost: "s3.example.com", wantSecure: true},
		{endpoint: "minio:9000/", useSSL: true, wantHost: "minio:9000", wantSecure: true},
	}

	for _, tt := range tests {
		host, secure, err := splitEndpoint(tt.endpoint, tt.useSSL)
		require.NoError(t, err, tt.endpoint)
		require.Equal(t, tt.wantHost, host, tt.endpoint)
		require.Equal(t, tt.wantSecure, secure, tt.endpoint)
	}

	_, _, err := splitEndpoint("", false)
	require.Error(t, err)
	_, _, err = splitEndpoint("http://", false)
	require.Error(t, err)
}

func TestMapError(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	require.ErrorIs(t, mapError("k", missing), ErrNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	err := mapError("k", denied)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "gcs", Endpoint: "localhost:9000"})
	require.Error(t, err)
}
