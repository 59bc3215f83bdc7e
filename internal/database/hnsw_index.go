package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWMaxNeighbors is the M parameter for the reference similarity graph.
const HNSWMaxNeighbors = 16

// ReferenceIndex is an in-memory HNSW graph over the newest reference
// embedding of every enrolled user. It backs the duplicate-enrollment check
// at face registration time.
//
// The graph is keyed by user ID: each user has at most one node, holding
// their current reference embedding. Adding a newer version for the same
// user replaces the node.
type ReferenceIndex struct {
	graph  *hnsw.Graph[string]
	byUser map[string]*ReferenceImage
	mu     sync.RWMutex
}

// NewReferenceIndex creates an empty index.
func NewReferenceIndex() *ReferenceIndex {
	return &ReferenceIndex{
		byUser: make(map[string]*ReferenceImage),
	}
}

func newReferenceGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents from the given references. References
// without an embedding are skipped; when several versions of the same user
// appear, the highest version wins.
func (ix *ReferenceIndex) Build(refs []ReferenceImage) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(refs) == 0 {
		ix.graph = nil
		ix.byUser = make(map[string]*ReferenceImage)
		return nil
	}

	g := newReferenceGraph()

	ix.byUser = make(map[string]*ReferenceImage, len(refs))
	for i := range refs {
		ref := &refs[i]
		if len(ref.Embedding) == 0 {
			continue
		}
		if existing, ok := ix.byUser[ref.UserID]; ok {
			if existing.Version >= ref.Version {
				continue
			}
			g.Delete(ref.UserID)
		}
		g.Add(hnsw.MakeNode(ref.UserID, ref.Embedding))
		ix.byUser[ref.UserID] = ref
	}

	ix.graph = g
	return nil
}

// Search returns the references nearest to the query embedding together with
// their cosine distances.
func (ix *ReferenceIndex) Search(query []float32, k int) ([]ReferenceImage, []float64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := ix.graph.Search(query, k)

	refs := make([]ReferenceImage, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		ref, ok := ix.byUser[n.Key]
		if !ok {
			continue
		}
		refs = append(refs, *ref)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return refs, distances, nil
}

// Add inserts or refreshes a single reference in the index. Used to keep the
// index current as attendance rolls references forward.
func (ix *ReferenceIndex) Add(ref *ReferenceImage) {
	if ref == nil || len(ref.Embedding) == 0 {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.graph == nil {
		ix.graph = newReferenceGraph()
	}

	// Drop the user's previous version; re-adding an existing key would
	// corrupt the graph.
	if _, ok := ix.byUser[ref.UserID]; ok {
		ix.graph.Delete(ref.UserID)
	}

	ix.graph.Add(hnsw.MakeNode(ref.UserID, ref.Embedding))
	ix.byUser[ref.UserID] = ref
}

// Count returns the number of indexed references.
func (ix *ReferenceIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byUser)
}
