package refdata

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrNotLoaded is returned when no snapshot has been published yet.
var ErrNotLoaded = errors.New("refdata: no snapshot loaded")

// Holder publishes the current snapshot. Readers never block; a reload
// replaces the whole snapshot atomically.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder returns a holder publishing snap, which may be nil.
func NewHolder(snap *Snapshot) *Holder {
	h := &Holder{}
	if snap != nil {
		h.current.Store(snap)
	}
	return h
}

// Snapshot returns the published snapshot or nil.
func (h *Holder) Snapshot() *Snapshot {
	return h.current.Load()
}

// Swap publishes snap and returns the previous snapshot.
func (h *Holder) Swap(snap *Snapshot) *Snapshot {
	return h.current.Swap(snap)
}

// Load reads tables from src and builds a snapshot, logging every report
// warning. The returned report tells a degraded load apart from a clean one.
func Load(ctx context.Context, src Source, logger zerolog.Logger) (*Snapshot, Report, error) {
	tables, report, err := src.LoadTables(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("load reference tables: %w", err)
	}

	snap, buildReport, err := Build(tables)
	report.Merge(buildReport)
	if err != nil {
		return nil, report, fmt.Errorf("build reference snapshot: %w", err)
	}

	for _, w := range report.Warnings {
		logger.Warn().Str("component", "refdata").Msg(w)
	}
	st := snap.Stats()
	logger.Info().Str("component", "refdata").
		Int("carriers", st.Carriers).
		Int("services", st.Services).
		Int("scopes", st.Scopes).
		Int("bands", st.Bands).
		Int("surcharges", st.Surcharges).
		Int("restrictions", st.Restrictions).
		Bool("degraded", report.Degraded).
		Msg("reference data loaded")

	return snap, report, nil
}

// Reload loads a fresh snapshot and publishes it. On failure the previous
// snapshot stays in place.
func (h *Holder) Reload(ctx context.Context, src Source, logger zerolog.Logger) (Report, error) {
	snap, report, err := Load(ctx, src, logger)
	if err != nil {
		return report, err
	}
	h.Swap(snap)
	return report, nil
}
