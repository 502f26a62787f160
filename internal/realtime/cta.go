package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/cta"
	"github.com/transitboard/transitboard/internal/logging"
	"github.com/transitboard/transitboard/internal/metrics"
)

// UpdateCTA requests Train Tracker predictions for every CTA slot and
// publishes each slot on its own. A slot whose request fails keeps its
// previous queues, marked stale; the other slots are still updated.
func (m *Manager) UpdateCTA(ctx context.Context) error {
	snap := m.opts.Board.Load()

	var (
		errs      []error
		published int
	)
	for _, group := range []board.Group{board.LineGroup, board.StationGroup} {
		for i, lb := range snap.Group(group) {
			if !lb.FromCTA() {
				continue
			}
			if err := m.updateCTASlot(ctx, group, i, lb.Slot); err != nil {
				m.opts.Board.MarkSlotFailed(group, i)
				errs = append(errs, fmt.Errorf("%s %d (stop %s): %w", group, i, lb.Stop, err))
				continue
			}
			published++
		}
	}

	if published > 0 {
		latest := m.opts.Board.Load()
		now := m.opts.Clock.Now()
		m.observePublished(latest)
		if m.opts.Metrics != nil {
			m.opts.Metrics.MarkPolled(CTAFeed, now)
		}
		logging.LogOperation(m.logger, "published_cta_arrivals",
			slog.Int("slots", published),
			slog.Int("failed", len(errs)))
		m.save(ctx, latest, now)
	}
	return errors.Join(errs...)
}

func (m *Manager) updateCTASlot(ctx context.Context, group board.Group, index int, slot board.Slot) error {
	source, err := cta.RequestURL(m.opts.CTA.URL, slot.Stop, slot.Route)
	if err != nil {
		return err
	}

	start := time.Now()
	body, err := m.fetch(ctx, m.ctaClient, CTAFeed, source)
	if err != nil {
		return err
	}

	resp, err := cta.Decode(body)
	if err != nil {
		m.observeFetch(CTAFeed, metrics.ResultDecodeError, start, len(body))
		return fmt.Errorf("%w: %s: %w", ErrDecodeFailed, CTAFeed, err)
	}

	q := cta.Arrivals(resp.Predictions, slot.Target(), m.opts.CTA.MaxMinutes)
	if _, err := m.opts.Board.PublishSlot(group, index, q, m.opts.Clock.Now()); err != nil {
		return err
	}
	m.observeFetch(CTAFeed, metrics.ResultOK, start, len(body))
	return nil
}
