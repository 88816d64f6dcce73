// Package hybridsearch implements Hybrid Search: weighted fusion of the
// Vector Store's semantic leg and the Full-Text Store's keyword leg,
// per spec.md §4.11. Grounded on the teacher's internal/search/engine.go
// hybrid-scoring protocol, generalized from the teacher's single
// in-process store pair to this engine's Vector/Full-Text Store
// contracts.
package hybridsearch

import (
	"context"
	"sort"

	"github.com/codesearch/engine/internal/fulltext"
	"github.com/codesearch/engine/internal/vectorstore"
)

// Mode selects which leg(s) of the search contribute to the result.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeVector Mode = "vector"
	ModeFTS    Mode = "fts"
)

// DefaultAlpha weights the vector leg when the caller doesn't specify
// one, matching spec.md's fallback for an invalid alpha.
const DefaultAlpha = 0.6

// MinTopK and MaxTopK bound the result-count request per spec.md §6.
const (
	MinTopK = 1
	MaxTopK = 50
)

// VectorSearcher is the subset of *vectorstore.Store hybrid search
// needs, so tests can fake it without standing up a real HNSW graph.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, topK int) ([]vectorstore.Result, error)
	GetChunksByID(ids []string) []vectorstore.Row
}

// FullTextSearcher is the subset of *fulltext.Store hybrid search
// needs.
type FullTextSearcher interface {
	Search(ctx context.Context, queryString string, topK int) ([]fulltext.Hit, error)
}

// Result is one fused, hydrated row.
type Result struct {
	Row   vectorstore.Row
	Score float64
}

// Request bundles one hybrid-search call's inputs.
type Request struct {
	Query       string // raw, unexpanded; used by the keyword leg
	QueryVector []float32
	Mode        Mode
	Alpha       float64
	TopK        int
}

// Normalize clamps Mode/Alpha/TopK to the ranges spec.md §4.11 and §6
// require, falling back to documented defaults on invalid input.
func (r Request) Normalize() Request {
	switch r.Mode {
	case ModeHybrid, ModeVector, ModeFTS:
	default:
		r.Mode = ModeHybrid
	}
	if r.Alpha < 0 || r.Alpha > 1 {
		r.Alpha = DefaultAlpha
	}
	if r.TopK < MinTopK {
		r.TopK = 10
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	return r
}

// overPullWindow is the widened topK used internally by the hybrid leg
// so fusion has enough candidates from each side to rank correctly.
func overPullWindow(topK int) int {
	if w := topK * 2; w > 20 {
		return w
	}
	return 20
}

// Search runs req against vec and ftsStore (ftsStore may be nil, in
// which case hybrid/fts requests downgrade to vector-only), returning
// up to req.TopK fused results ordered by score descending.
func Search(ctx context.Context, vec VectorSearcher, ftsStore FullTextSearcher, req Request) ([]Result, bool, error) {
	req = req.Normalize()
	warnDowngrade := false

	mode := req.Mode
	if ftsStore == nil {
		if mode == ModeFTS {
			warnDowngrade = true
		}
		mode = ModeVector
	}

	switch mode {
	case ModeVector:
		rows, err := vec.Search(ctx, req.QueryVector, req.TopK)
		if err != nil {
			return nil, warnDowngrade, err
		}
		out := make([]Result, 0, len(rows))
		for _, r := range rows {
			out = append(out, Result{Row: r.Row, Score: float64(r.Score)})
		}
		return out, warnDowngrade, nil

	case ModeFTS:
		hits, err := ftsStore.Search(ctx, req.Query, req.TopK)
		if err != nil {
			return nil, warnDowngrade, err
		}
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		rowByID := rowsByID(vec.GetChunksByID(ids))
		normalized := normalizeHits(hits)
		out := make([]Result, 0, len(normalized))
		for id, score := range normalized {
			row, ok := rowByID[id]
			if !ok {
				continue
			}
			out = append(out, Result{Row: row, Score: score})
		}
		sortResults(out)
		return truncate(out, req.TopK), warnDowngrade, nil

	default: // ModeHybrid
		window := overPullWindow(req.TopK)

		vecRows, err := vec.Search(ctx, req.QueryVector, window)
		if err != nil {
			return nil, warnDowngrade, err
		}
		vecScores := make(map[string]float64, len(vecRows))
		rowByID := make(map[string]vectorstore.Row, len(vecRows))
		for _, r := range vecRows {
			vecScores[r.Row.ID] = normalizeMax(float64(r.Score), maxVectorScore(vecRows))
			rowByID[r.Row.ID] = r.Row
		}

		var ftsScores map[string]float64
		if ftsStore != nil {
			hits, err := ftsStore.Search(ctx, req.Query, window)
			if err != nil {
				return nil, warnDowngrade, err
			}
			ftsScores = normalizeHits(hits)
			var missingIDs []string
			for id := range ftsScores {
				if _, ok := rowByID[id]; !ok {
					missingIDs = append(missingIDs, id)
				}
			}
			if len(missingIDs) > 0 {
				for _, row := range vec.GetChunksByID(missingIDs) {
					rowByID[row.ID] = row
				}
			}
		}

		fused := make(map[string]float64, len(rowByID))
		for id := range rowByID {
			v := vecScores[id]
			f := ftsScores[id]
			fused[id] = req.Alpha*v + (1-req.Alpha)*f
		}

		out := make([]Result, 0, len(fused))
		for id, score := range fused {
			row, ok := rowByID[id]
			if !ok {
				continue
			}
			out = append(out, Result{Row: row, Score: score})
		}
		sortResults(out)
		return truncate(out, req.TopK), warnDowngrade, nil
	}
}

func rowsByID(rows []vectorstore.Row) map[string]vectorstore.Row {
	m := make(map[string]vectorstore.Row, len(rows))
	for _, r := range rows {
		m[r.ID] = r
	}
	return m
}

// normalizeHits rescales raw FTS scores into [0,1] by dividing by the
// observed top raw score of this query's result set; an all-zero top
// score maps every hit to zero.
func normalizeHits(hits []fulltext.Hit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	top := 0.0
	for _, h := range hits {
		if h.RawScore > top {
			top = h.RawScore
		}
	}
	for _, h := range hits {
		if top == 0 {
			out[h.ID] = 0
			continue
		}
		out[h.ID] = h.RawScore / top
	}
	return out
}

func maxVectorScore(rows []vectorstore.Result) float64 {
	top := 0.0
	for _, r := range rows {
		if float64(r.Score) > top {
			top = float64(r.Score)
		}
	}
	return top
}

func normalizeMax(score, top float64) float64 {
	if top == 0 {
		return 0
	}
	return score / top
}

func sortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].Row.ID < rs[j].Row.ID
	})
}

func truncate(rs []Result, topK int) []Result {
	if len(rs) > topK {
		return rs[:topK]
	}
	return rs
}
