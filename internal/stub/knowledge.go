// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package stub

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Index retrieves passages relevant to a query.
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
}

// MemoryIndex scores passages by keyword overlap. It is the default index so
// the knowledge backend works with no external services.
type MemoryIndex struct {
	passages []Passage
}

// NewMemoryIndex builds an index over the given passages.
func NewMemoryIndex(passages []Passage) *MemoryIndex {
	return &MemoryIndex{passages: passages}
}

// Search returns up to limit passages ordered by relevance. Passages with no
// overlapping terms are excluded.
func (idx *MemoryIndex) Search(_ context.Context, query string, limit int) ([]Passage, error) {
	terms := tokenize(query)
	type scored struct {
		passage Passage
		score   float64
	}
	var hits []scored
	for _, p := range idx.passages {
		body := tokenize(p.Title + " " + p.Text)
		overlap := 0
		for term := range terms {
			if body[term] > 0 {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		hits = append(hits, scored{passage: p, score: float64(overlap) / float64(len(terms))})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = h.passage
	}
	return out, nil
}

func tokenize(text string) map[string]int {
	out := map[string]int{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 3 {
			continue
		}
		out[tok]++
	}
	return out
}

// Embed converts text into a deterministic bag-of-words vector. It is no
// substitute for a real embedding model but gives the vector path something
// stable to search against.
func Embed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for tok, count := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%dim] += float32(count)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

type knowledgeRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type knowledgeCitation struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

type knowledgeResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []knowledgeCitation `json:"citations"`
}

// NewKnowledgeHandler builds the document-QA backend: an OpenAI-compatible
// chat completions surface that answers from the index with citations.
func NewKnowledgeHandler(index Index) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			// Reachability probes GET this path.
			w.WriteHeader(http.StatusOK)
			return
		}

		var req knowledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		query := ""
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				query = req.Messages[i].Content
				break
			}
		}
		if strings.TrimSpace(query) == "" {
			http.Error(w, "no user message in request", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		passages, err := index.Search(ctx, query, 2)
		if err != nil {
			http.Error(w, "index search failed", http.StatusInternalServerError)
			return
		}

		var resp knowledgeResponse
		resp.Choices = make([]struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}, 1)
		if len(passages) == 0 {
			resp.Choices[0].Message.Content = "The plan documents do not cover that topic."
		} else {
			var parts []string
			for _, p := range passages {
				parts = append(parts, p.Text)
				resp.Citations = append(resp.Citations, knowledgeCitation{Title: p.Title, Source: p.Source})
			}
			resp.Choices[0].Message.Content = strings.Join(parts, "\n\n")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}
