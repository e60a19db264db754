package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/italolelis/cloudleecher/internal/telemetry"
)

// InstrumentedCompletionRepository wraps CompletionRepository with telemetry.
type InstrumentedCompletionRepository struct {
	repo      *CompletionRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedCompletionRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedCompletionRepository {
	return &InstrumentedCompletionRepository{
		repo:      NewCompletionRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedCompletionRepository) Record(ctx context.Context, e history.Entry) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_completion", func(ctx context.Context) error {
		return r.repo.Record(ctx, e)
	})
}

func (r *InstrumentedCompletionRepository) Completions(ctx context.Context) ([]history.Entry, error) {
	var entries []history.Entry

	err := r.telemetry.InstrumentDBOperation(ctx, "list_completions", func(ctx context.Context) error {
		var err error
		entries, err = r.repo.Completions(ctx)

		return err
	})

	return entries, err
}
