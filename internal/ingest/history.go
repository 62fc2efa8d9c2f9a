package ingest

import (
	"context"

	"go.uber.org/zap"

	"airsafe_tracker/internal/airsafe"
	"airsafe_tracker/internal/fragment"
	"airsafe_tracker/internal/sink"
	"airsafe_tracker/internal/target"
)

// HistoryFetcher performs the bounded historical request.
type HistoryFetcher interface {
	History(ctx context.Context, q airsafe.HistoryQuery) (fragment.LineResult, error)
}

// History fetches one window of target updates and publishes it as an array.
type History struct {
	fetcher  HistoryFetcher
	query    airsafe.HistoryQuery
	sink     sink.HistorySink
	reporter Reporter
}

// NewHistory creates a history pipeline. A nil reporter logs through zap.
func NewHistory(f HistoryFetcher, q airsafe.HistoryQuery, s sink.HistorySink, r Reporter) *History {
	if r == nil {
		r = LogReporter{}
	}
	return &History{fetcher: f, query: q, sink: s, reporter: r}
}

// Run fetches, reports undecodable lines and publishes the targets in the
// order received.
func (h *History) Run(ctx context.Context) ([]target.Target, error) {
	res, err := h.fetcher.History(ctx, h.query)
	if err != nil {
		h.reporter.Alert(Classify(err), err)
		return nil, err
	}

	for _, e := range res.Errors {
		h.reporter.Notice(e)
	}

	zap.L().Info("history received",
		zap.String("icao_address", h.query.ICAOAddress),
		zap.Int("targets", len(res.Targets)),
		zap.Int("skipped", len(res.Errors)),
	)

	if h.sink != nil {
		if err := h.sink.PublishHistory(ctx, res.Targets); err != nil {
			zap.L().Warn("history publish failed", zap.Error(err))
		}
	}
	return res.Targets, nil
}
