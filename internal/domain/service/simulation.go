package service

import "MarketSim/internal/domain/models"

// FeedSink receives structured narrative entries. Formatting is the sink's concern.
type FeedSink interface {
	Log(state *models.State, entry models.FeedEntry)
}

// EffectApplier materializes effect descriptors emitted by scenario outcomes.
type EffectApplier interface {
	Apply(state *models.State, d models.EffectDescriptor)
}

// FeedFunc adapts a plain function to FeedSink.
type FeedFunc func(state *models.State, entry models.FeedEntry)

func (f FeedFunc) Log(state *models.State, entry models.FeedEntry) { f(state, entry) }

// DiscardFeed drops every entry.
var DiscardFeed FeedSink = FeedFunc(func(*models.State, models.FeedEntry) {})

// FeedBuffer collects entries in order. Not safe for concurrent use.
type FeedBuffer struct {
	Entries []models.FeedEntry
}

func (b *FeedBuffer) Log(state *models.State, entry models.FeedEntry) {
	if state != nil {
		if entry.Day == 0 {
			entry.Day = state.Clock.Day
		}
		if entry.Tick == 0 {
			entry.Tick = state.Clock.TotalTicks
		}
	}
	b.Entries = append(b.Entries, entry)
}

// Drain returns the buffered entries and resets the buffer.
func (b *FeedBuffer) Drain() []models.FeedEntry {
	out := b.Entries
	b.Entries = nil
	return out
}
