package extract

import (
	"context"
	"encoding/json"
)

// ApplicantRef identifies one applicant in the upstream source list.
type ApplicantRef struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	CVURL      string `json:"cv_url,omitempty"`
}

// ProfileData is a fetched applicant profile.
type ProfileData struct {
	Name     string          `json:"name,omitempty"`
	Headline string          `json:"headline,omitempty"`
	Location string          `json:"location,omitempty"`
	Email    string          `json:"email,omitempty"`
	Skills   []string        `json:"skills,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"` // Source payload as received
}

// DownloadResult records the outcome of a CV download.
type DownloadResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ApplicantSource lists the applicants for a job posting.
// Implementations return errors wrapping errors.ErrNavigation when the
// upstream structure is unrecognized; the orchestrator treats that as fatal.
type ApplicantSource interface {
	ListApplicants(ctx context.Context, jobID, applicantViewID string) ([]ApplicantRef, error)
}

// ProfileFetcher fetches a single applicant profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, ref ApplicantRef) (*ProfileData, error)
}

// DownloadProgress reports CV download progress. total is -1 when unknown.
type DownloadProgress func(received, total int64)

// CVDownloader downloads an applicant's CV document.
// progress may be nil when the caller does not want progress callbacks.
type CVDownloader interface {
	DownloadCV(ctx context.Context, ref ApplicantRef, progress DownloadProgress) (DownloadResult, error)
}
