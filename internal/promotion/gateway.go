// Package promotion implements the Promotion Gateway (component C6): it
// decides which resolved gotchas from a completed JobMemory deserve to
// become persistent knowledge, and forwards them through a pluggable
// contract to an external knowledge store.
//
// Grounded on the teacher's internal/nats client wrapper (connection
// lifecycle, JSON publish convenience) for the wire transport, and
// internal/events' "deliver to every interested subscriber, log failures,
// never abort the batch" discipline for ForwardGotchas' per-item error
// handling.
package promotion

import (
	"context"

	"github.com/jobmemory/core/internal/types"
)

// GotchaOccurrence is one recorded sighting of a promoted pattern.
type GotchaOccurrence struct {
	IssueID        string  `json:"issueId"`
	AgentType      string  `json:"agentType"`
	Timestamp      string  `json:"timestamp"`
	Resolved       bool    `json:"resolved"`
	ResolutionTime float64 `json:"resolutionTime"`
}

// GotchaPattern is the value-copied, immutable shape handed to the
// knowledge store, per spec.md §4.6.
type GotchaPattern struct {
	Description     string             `json:"description"`
	Pattern         string             `json:"pattern"`
	Severity        types.Severity     `json:"severity"`
	Category        string             `json:"category"`
	Solution        string             `json:"solution"`
	PreventionSteps []string           `json:"preventionSteps,omitempty"`
	Occurrences     []GotchaOccurrence `json:"occurrences"`
}

// KnowledgeStore is the single outbound contract consumed from the
// external knowledge store (spec.md §6): it may fail with any error, and
// the façade treats failure as non-fatal.
type KnowledgeStore interface {
	RecordGotcha(ctx context.Context, pattern GotchaPattern) error
}

// eligible reports whether g satisfies every promotion criterion in
// spec.md §4.6: severity critical|high, resolved, confidence >= 0.8.
func eligible(g *types.Gotcha) bool {
	if g.Severity != types.SeverityCritical && g.Severity != types.SeverityHigh {
		return false
	}
	if g.Resolution == nil || !g.Resolution.Resolved {
		return false
	}
	return g.Resolution.Confidence >= 0.8
}

func buildPattern(issueID string, g *types.Gotcha) GotchaPattern {
	return GotchaPattern{
		Description:     g.Description,
		Pattern:         g.ErrorPattern,
		Severity:        g.Severity,
		Category:        g.Category,
		Solution:        g.Resolution.Solution,
		PreventionSteps: g.Resolution.PreventionSteps,
		Occurrences: []GotchaOccurrence{{
			IssueID:        issueID,
			AgentType:      g.AgentType,
			Timestamp:      g.Resolution.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			Resolved:       true,
			ResolutionTime: g.Resolution.ResolutionTime,
		}},
	}
}

// Gateway is the C6 Promotion Gateway.
type Gateway struct {
	store KnowledgeStore
}

// New creates a Gateway forwarding to store. A nil store makes every
// promotion attempt a documented no-op (see spec.md §7's Disabled kind):
// ForwardGotchas then promotes nothing and records no failures.
func New(store KnowledgeStore) *Gateway {
	return &Gateway{store: store}
}

// PromotionResult reports what happened to each gotcha considered for
// promotion.
type PromotionResult struct {
	Promoted int
	Failures map[string]error // gotchaId -> error
}

// ForwardGotchas filters jm's gotchas against the promotion criteria and
// forwards each qualifying one to the knowledge store. A failure on one
// gotcha is recorded and does not halt the remaining promotions, per
// spec.md §4.6.
func (g *Gateway) ForwardGotchas(ctx context.Context, jm *types.JobMemory) PromotionResult {
	result := PromotionResult{Failures: make(map[string]error)}
	if g.store == nil {
		return result
	}
	for _, gotcha := range jm.Gotchas {
		if !eligible(gotcha) {
			continue
		}
		pattern := buildPattern(jm.IssueID, gotcha)
		if err := g.store.RecordGotcha(ctx, pattern); err != nil {
			result.Failures[gotcha.ID] = err
			continue
		}
		result.Promoted++
	}
	return result
}
