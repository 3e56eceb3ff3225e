// Package source provides applicant roster and profile collaborators for
// the extraction pipeline.
package source

import (
	"context"
	"encoding/json"
	"os"

	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
)

// rosterDoc is the on-disk shape of an applicant roster file.
type rosterDoc struct {
	Jobs []rosterJob `json:"jobs"`
}

type rosterJob struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Applicants []rosterApplicant `json:"applicants"`
}

type rosterApplicant struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProfileURL string   `json:"profile_url,omitempty"`
	CVURL      string   `json:"cv_url,omitempty"`
	Views      []string `json:"views,omitempty"`
}

// FileSource serves applicant references from a JSON roster file. The file
// is re-read on every listing so roster edits take effect without a restart.
type FileSource struct {
	path string
}

// NewFileSource creates a roster-file applicant source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// ListApplicants returns the applicants for jobID, filtered to viewID when
// one is given. A missing or malformed roster is an unrecognized-structure
// failure: nothing downstream can recover from it.
func (s *FileSource) ListApplicants(ctx context.Context, jobID, viewID string) ([]extract.ApplicantRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNavigation, "failed to read roster file %s: %v", s.path, err)
	}

	var doc rosterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(errors.ErrNavigation, "unrecognized roster structure in %s: %v", s.path, err)
	}
	if doc.Jobs == nil {
		return nil, errors.Wrapf(errors.ErrNavigation, "unrecognized roster structure in %s: missing jobs", s.path)
	}

	for _, job := range doc.Jobs {
		if job.ID != jobID {
			continue
		}
		refs := make([]extract.ApplicantRef, 0, len(job.Applicants))
		for _, app := range job.Applicants {
			if viewID != "" && !hasView(app.Views, viewID) {
				continue
			}
			refs = append(refs, extract.ApplicantRef{
				ID:         app.ID,
				Name:       app.Name,
				ProfileURL: app.ProfileURL,
				CVURL:      app.CVURL,
			})
		}
		return refs, nil
	}

	return nil, errors.Newf("job %s not found in roster", jobID)
}

func hasView(views []string, viewID string) bool {
	for _, v := range views {
		if v == viewID {
			return true
		}
	}
	return false
}
