package analytics

import (
	"sort"
	"strings"

	"github.com/jobmemory/core/internal/joberrors"
	"github.com/jobmemory/core/internal/types"
)

const similarityThreshold = 0.6

// featureSet builds the bag of features a job is compared against for
// similarity: its agent types, its decision categories, and a
// bag-of-tokens over its decision descriptions.
func featureSet(jm *types.JobMemory) map[string]bool {
	features := map[string]bool{}
	for _, a := range jm.Metadata.AgentTypes {
		features["agent:"+a] = true
	}
	for _, d := range jm.Decisions {
		if d.Category != "" {
			features["category:"+d.Category] = true
		}
		for _, tok := range strings.Fields(strings.ToLower(d.Description)) {
			features["token:"+tok] = true
		}
	}
	return features
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection, union := 0, 0
	seen := map[string]bool{}
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	for k := range seen {
		inA, inB := a[k], b[k]
		if inA && inB {
			intersection++
		}
		if inA || inB {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FindSimilarJobs returns every other job in the corpus whose Jaccard
// similarity with jobID's feature set is at least similarityThreshold,
// sorted descending.
func (e *Engine) FindSimilarJobs(jobID string) ([]types.SimilarJob, error) {
	jm, err := e.store.GetJobMemory(jobID)
	if err != nil {
		return nil, err
	}
	if jm == nil {
		return nil, joberrors.NotFound(jobID, "job memory not found")
	}
	all, err := e.store.LoadAllJobMemories()
	if err != nil {
		return nil, err
	}

	target := featureSet(jm)
	out := make([]types.SimilarJob, 0)
	for _, other := range all {
		if other.JobID == jobID {
			continue
		}
		sim := jaccard(target, featureSet(other))
		if sim >= similarityThreshold {
			out = append(out, types.SimilarJob{JobID: other.JobID, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}
