package store

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSW parameters for the candidate graph.
const (
	hnswM        = 16
	hnswEfSearch = 64

	// candidateFactor oversamples graph candidates before exact rescoring.
	candidateFactor = 4
	minCandidates   = 50
)

// vectorGraph is an in-process HNSW graph over chunk embeddings. It only
// proposes candidates; callers rescore them against committed vectors.
//
// Replaced and deleted ids are orphaned instead of removed from the graph,
// which avoids coder/hnsw's trouble with deleting the last node. The graph
// is rebuilt once orphans outnumber live ids.
type vectorGraph struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64 // chunk id -> graph key
	keyMap  map[uint64]string // graph key -> chunk id
	vectors map[string][]float32
	nextKey uint64
}

func newVectorGraph(dims int) *vectorGraph {
	g := &vectorGraph{dims: dims}
	g.reset()
	return g
}

func (g *vectorGraph) reset() {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch
	graph.Ml = 0.25

	g.graph = graph
	g.idMap = make(map[string]uint64)
	g.keyMap = make(map[uint64]string)
	g.vectors = make(map[string][]float32)
	g.nextKey = 0
}

// Add inserts or replaces the vector for id.
func (g *vectorGraph) Add(id string, vector []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(id, vector)
	g.compactLocked()
}

func (g *vectorGraph) addLocked(id string, vector []float32) {
	if existingKey, exists := g.idMap[id]; exists {
		delete(g.keyMap, existingKey)
		delete(g.idMap, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	toUnit(vec)

	key := g.nextKey
	g.nextKey++
	g.graph.Add(hnsw.MakeNode(key, vec))
	g.idMap[id] = key
	g.keyMap[key] = id
	g.vectors[id] = vec
}

// Delete orphans ids.
func (g *vectorGraph) Delete(ids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		if key, exists := g.idMap[id]; exists {
			delete(g.keyMap, key)
			delete(g.idMap, id)
			delete(g.vectors, id)
		}
	}
	g.compactLocked()
}

// compactLocked rebuilds the graph from live vectors when orphans dominate.
func (g *vectorGraph) compactLocked() {
	live := len(g.idMap)
	if g.graph.Len()-live <= live {
		return
	}
	vectors := g.vectors
	g.reset()
	for id, vec := range vectors {
		g.addLocked(id, vec)
	}
}

// Candidates returns up to max(topK*candidateFactor, minCandidates) chunk
// ids near query, best first.
func (g *vectorGraph) Candidates(query []float32, topK int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.idMap) == 0 {
		return nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	toUnit(q)

	k := max(topK*candidateFactor, minCandidates)
	// Orphans can occupy result slots; ask for enough to cover them.
	k += g.graph.Len() - len(g.idMap)

	nodes := g.graph.Search(q, k)
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if id, ok := g.keyMap[node.Key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of live vectors.
func (g *vectorGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.idMap)
}

// graphStats reports live and orphaned node counts.
type graphStats struct {
	Live    int
	Nodes   int
	Orphans int
}

func (g *vectorGraph) stats() graphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := g.graph.Len()
	return graphStats{Live: len(g.idMap), Nodes: nodes, Orphans: nodes - len(g.idMap)}
}
