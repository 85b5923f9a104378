package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"MarketSim/internal/domain/models"
	"MarketSim/internal/domain/repository"
	"MarketSim/internal/services/scenario"
	"MarketSim/pkg/logger"
)

// SnapshotService encodes simulation state for persistence and rebuilds it
// tolerantly: fields that fail to decode fall back to defaults.
type SnapshotService struct {
	store     repository.SnapshotStore
	scheduler *scenario.Scheduler
	log       *logger.Logger
}

func NewSnapshotService(store repository.SnapshotStore, scheduler *scenario.Scheduler, log *logger.Logger) *SnapshotService {
	return &SnapshotService{store: store, scheduler: scheduler, log: log}
}

func (s *SnapshotService) Encode(state *models.State) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode rebuilds state from payload. Only a payload that is not a JSON object
// at all is rejected; everything else is normalized.
func (s *SnapshotService) Decode(payload []byte) (*models.State, error) {
	var st models.State
	if err := json.Unmarshal(payload, &st); err != nil {
		lenient, lerr := decodeLenient(payload)
		if lerr != nil {
			return nil, fmt.Errorf("decode snapshot: %w", lerr)
		}
		s.log.Warn("snapshot decoded leniently", logger.Error(err))
		st = *lenient
	}
	st.Normalize()
	s.dropUnknownScenarios(&st)
	return &st, nil
}

func (s *SnapshotService) Save(ctx context.Context, state *models.State) error {
	if s.store == nil {
		return fmt.Errorf("save snapshot: no store configured")
	}
	b, err := s.Encode(state)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, state.RunID, b); err != nil {
		return fmt.Errorf("save snapshot %s: %w", state.RunID, err)
	}
	return nil
}

func (s *SnapshotService) Load(ctx context.Context, runID string) (*models.State, error) {
	if s.store == nil {
		return nil, fmt.Errorf("load snapshot: no store configured")
	}
	b, err := s.store.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", runID, err)
	}
	st, err := s.Decode(b)
	if err != nil {
		return nil, err
	}
	if st.RunID == "" {
		st.RunID = runID
	}
	return st, nil
}

// dropUnknownScenarios removes pending instances whose definition is no longer
// in the catalog and repairs default choices that no longer exist.
func (s *SnapshotService) dropUnknownScenarios(st *models.State) {
	if s.scheduler == nil {
		return
	}
	kept := st.Pending[:0]
	for _, p := range st.Pending {
		def, ok := s.scheduler.Definition(p.DefinitionID)
		if !ok {
			if m, found := st.Memory[p.DefinitionID]; found {
				m.PendingID = nil
			}
			s.log.Warn("dropping pending instance of unknown scenario", logger.String("scenario", p.DefinitionID))
			continue
		}
		if _, ok := def.Choice(p.DefaultChoice); !ok {
			p.DefaultChoice = def.DefaultChoice
		}
		kept = append(kept, p)
	}
	st.Pending = kept
}

// decodeLenient decodes field by field, skipping anything malformed.
func decodeLenient(payload []byte) (*models.State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	st := &models.State{}
	field := func(key string, dst any) {
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	field("run_id", &st.RunID)
	field("clock", &st.Clock)
	field("sequence", &st.Sequence)
	field("cash", &st.Cash)
	field("capabilities", &st.Capabilities)
	field("positions", &st.Positions)
	field("macro", &st.Macro)
	field("throttle", &st.Throttle)
	field("streaks", &st.Streaks)
	field("next_instance_id", &st.NextInstanceID)
	field("rng_state", &st.RNGState)

	st.Assets = decodeEach[*models.Asset](raw["assets"])
	st.Ledger = decodeEach[models.Trade](raw["ledger"])
	st.Modifiers = decodeEach[models.Modifier](raw["modifiers"])
	st.Pending = decodeEach[models.PendingEvent](raw["pending"])
	st.Memory = decodeEntries[*models.EventMemory](raw["memory"])
	st.Sentiment = decodeEntries[*models.SentimentEntry](raw["sentiment"])
	return st, nil
}

func decodeEach[T any](raw json.RawMessage) []T {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func decodeEntries[T any](raw json.RawMessage) map[string]T {
	var items map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make(map[string]T, len(items))
	for k, it := range items {
		var v T
		if err := json.Unmarshal(it, &v); err == nil {
			out[k] = v
		}
	}
	return out
}
