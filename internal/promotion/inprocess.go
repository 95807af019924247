package promotion

import "context"

// InProcessStore forwards directly to an in-process function, for
// embedding callers that run their own knowledge store in the same
// process and want to skip a network hop entirely.
type InProcessStore struct {
	RecordFn func(ctx context.Context, pattern GotchaPattern) error
}

// RecordGotcha satisfies KnowledgeStore by delegating to RecordFn.
func (s *InProcessStore) RecordGotcha(ctx context.Context, pattern GotchaPattern) error {
	return s.RecordFn(ctx, pattern)
}
