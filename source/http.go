package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
)

// HTTPClient fetches profiles and CVs over HTTP with client-side request
// pacing. The pacing is separate from the orchestrator's per-minute budget:
// it smooths bursts, while the budget caps sustained volume.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	cvDir   string
}

// NewHTTPClient creates a paced HTTP profile fetcher and CV downloader.
// requestsPerSecond <= 0 disables pacing. Downloads land in cvDir.
func NewHTTPClient(baseURL string, requestsPerSecond float64, cvDir string) *HTTPClient {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
		cvDir:   cvDir,
	}
}

// FetchProfile retrieves and decodes one applicant profile.
func (c *HTTPClient) FetchProfile(ctx context.Context, ref extract.ApplicantRef) (*extract.ProfileData, error) {
	url := ref.ProfileURL
	if url == "" {
		url = fmt.Sprintf("%s/applicants/%s/profile", c.baseURL, ref.ID)
	}

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var profile extract.ProfileData
	if err := json.NewDecoder(body).Decode(&profile); err != nil {
		return nil, errors.Wrapf(err, "failed to decode profile for %s", ref.ID)
	}
	return &profile, nil
}

// DownloadCV streams the applicant's CV to disk, reporting progress as
// bytes arrive.
func (c *HTTPClient) DownloadCV(ctx context.Context, ref extract.ApplicantRef, progress extract.DownloadProgress) (extract.DownloadResult, error) {
	if ref.CVURL == "" {
		return extract.DownloadResult{Success: false, Message: "no CV on file"}, nil
	}

	body, total, err := c.getWithLength(ctx, ref.CVURL)
	if err != nil {
		return extract.DownloadResult{}, err
	}
	defer body.Close()

	if err := os.MkdirAll(c.cvDir, 0o755); err != nil {
		return extract.DownloadResult{}, errors.Wrap(err, "failed to create CV directory")
	}
	path := filepath.Join(c.cvDir, sanitizeFilename(ref.ID)+".pdf")

	f, err := os.Create(path)
	if err != nil {
		return extract.DownloadResult{}, errors.Wrap(err, "failed to create CV file")
	}
	defer f.Close()

	w := &progressWriter{dst: f, total: total, progress: progress}
	if _, err := io.Copy(w, body); err != nil {
		os.Remove(path)
		return extract.DownloadResult{}, errors.Wrapf(err, "failed to download CV for %s", ref.ID)
	}

	return extract.DownloadResult{Success: true, FilePath: path}, nil
}

// get performs a paced GET and maps HTTP status to the failure taxonomy.
func (c *HTTPClient) get(ctx context.Context, url string) (io.ReadCloser, error) {
	body, _, err := c.getWithLength(ctx, url)
	return body, err
}

func (c *HTTPClient) getWithLength(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, errors.Wrap(err, "request pacing interrupted")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to build request for %s", url)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "request failed for %s", url)
	}

	if err := classifyStatus(resp.StatusCode, url); err != nil {
		resp.Body.Close()
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// classifyStatus maps upstream HTTP status codes onto the sentinel errors
// the retry classifier understands. 999 is the upstream's throttling code.
func classifyStatus(status int, url string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.Wrapf(errors.ErrAuthExpired, "HTTP %d from %s", status, url)
	case status == http.StatusNotFound:
		return errors.Newf("resource not found: %s", url)
	case status == http.StatusTooManyRequests, status == 999:
		return errors.Wrapf(errors.ErrRateLimited, "HTTP %d from %s", status, url)
	default:
		return errors.Newf("unexpected HTTP %d from %s", status, url)
	}
}

// progressWriter reports cumulative bytes written through the download
// progress callback.
type progressWriter struct {
	dst      io.Writer
	received int64
	total    int64
	progress extract.DownloadProgress
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.received += int64(n)
	if w.progress != nil && n > 0 {
		w.progress(w.received, w.total)
	}
	return n, err
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, name)
}
