package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
)

func TestHTTPClientFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/applicants/a1/profile", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "Ada", "headline": "Engineer", "skills": ["go", "sql"]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0, t.TempDir())
	profile, err := c.FetchProfile(context.Background(), extract.ApplicantRef{ID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, "Engineer", profile.Headline)
	assert.Equal(t, []string{"go", "sql"}, profile.Skills)
}

func TestHTTPClientProfileURLOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/custom/path", r.URL.Path)
		w.Write([]byte(`{"name": "Ada"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("http://unused.invalid", 0, t.TempDir())
	_, err := c.FetchProfile(context.Background(), extract.ApplicantRef{
		ID:         "a1",
		ProfileURL: srv.URL + "/custom/path",
	})
	require.NoError(t, err)
}

func TestHTTPClientStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		kind     extract.FailureKind
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ErrAuthExpired, extract.FailureFatal},
		{"forbidden", http.StatusForbidden, errors.ErrAuthExpired, extract.FailureFatal},
		{"not found", http.StatusNotFound, nil, extract.FailureFatal},
		{"too many requests", http.StatusTooManyRequests, errors.ErrRateLimited, extract.FailureRetryable},
		{"upstream throttle code", 999, errors.ErrRateLimited, extract.FailureRetryable},
		{"server error", http.StatusInternalServerError, nil, extract.FailureRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, 0, t.TempDir())
			_, err := c.FetchProfile(context.Background(), extract.ApplicantRef{ID: "a1"})
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel))
			}
			assert.Equal(t, tt.kind, extract.DefaultClassifier(err))
		})
	}
}

func TestHTTPClientDownloadCV(t *testing.T) {
	payload := []byte("%PDF-1.4 fake cv content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(payload)
	}))
	defer srv.Close()

	cvDir := t.TempDir()
	c := NewHTTPClient(srv.URL, 0, cvDir)

	var lastReceived, lastTotal int64
	result, err := c.DownloadCV(context.Background(), extract.ApplicantRef{
		ID:    "a1",
		CVURL: srv.URL + "/cv.pdf",
	}, func(received, total int64) {
		lastReceived, lastTotal = received, total
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	data, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), lastReceived)
	assert.Equal(t, int64(len(payload)), lastTotal)
}

func TestHTTPClientDownloadCVWithoutURL(t *testing.T) {
	c := NewHTTPClient("http://unused.invalid", 0, t.TempDir())
	result, err := c.DownloadCV(context.Background(), extract.ApplicantRef{ID: "a1"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no CV on file", result.Message)
}
