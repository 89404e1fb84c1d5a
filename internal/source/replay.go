package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// ReplayFetcher serves results captured earlier instead of querying the
// indexer. Each (project, kind) lives in its own envelope file named
// <project>.<kind>.json; a missing file is an empty dataset.
type ReplayFetcher struct {
	dir string
}

// NewReplayFetcher reads envelopes from dir
func NewReplayFetcher(dir string) *ReplayFetcher {
	return &ReplayFetcher{dir: dir}
}

// Path returns the envelope file of one dataset
func (f *ReplayFetcher) Path(project string, kind types.SourceKind) string {
	return filepath.Join(f.dir, project+"."+string(kind)+".json")
}

// FetchPage implements Fetcher by slicing the captured rows
func (f *ReplayFetcher) FetchPage(ctx context.Context, req Request) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}

	path := f.Path(req.Project, req.Kind)
	raw, err := os.ReadFile(path) // #nosec G304 - path is built from the configured capture directory
	if os.IsNotExist(err) {
		return Payload{}, nil
	}
	if err != nil {
		return Payload{}, errors.NewSourceUnavailableError(req.Project, path, err)
	}

	res, err := ParseEnvelope(req.Project, req.Kind, raw)
	if err != nil {
		return Payload{}, errors.NewSourceRejectedError(req.Project, 0, err.Error())
	}
	if res.Err != nil {
		return Payload{}, errors.NewSourceUnavailableError(req.Project, path, res.Err)
	}

	page := res.Payload
	start := req.Offset
	if start > len(page.Rows) {
		start = len(page.Rows)
	}
	end := len(page.Rows)
	if req.Limit > 0 && start+req.Limit < end {
		end = start + req.Limit
	}
	page.Rows = page.Rows[start:end]
	return page, nil
}
