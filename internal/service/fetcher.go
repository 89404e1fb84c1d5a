package service

import (
	"context"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// ActivityReader serves archived call events page by page
type ActivityReader interface {
	ListByProject(ctx context.Context, project string, since int64, limit, offset int) ([]types.CallEvent, error)
}

// RoutedFetcher reads activity from the ClickHouse archive and every other
// dataset from the indexer
type RoutedFetcher struct {
	indexer  source.Fetcher
	activity ActivityReader
}

// NewRoutedFetcher creates a fetcher that sends activity requests to activity
func NewRoutedFetcher(indexer source.Fetcher, activity ActivityReader) *RoutedFetcher {
	return &RoutedFetcher{indexer: indexer, activity: activity}
}

// FetchPage implements source.Fetcher
func (f *RoutedFetcher) FetchPage(ctx context.Context, req source.Request) (source.Payload, error) {
	if req.Kind != types.KindActivity || f.activity == nil {
		return f.indexer.FetchPage(ctx, req)
	}

	events, err := f.activity.ListByProject(ctx, req.Project, req.Since, req.Limit, req.Offset)
	if err != nil {
		return source.Payload{}, errors.NewDatabaseError("list call events", err)
	}
	return source.EventsPayload(events), nil
}
