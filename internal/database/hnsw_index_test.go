package database

import "testing"

func TestReferenceIndexAdd(t *testing.T) {
	t.Run("DistinctUsersWithoutRowIDs", func(t *testing.T) {
		// Enrollment indexes references straight from the request, before
		// any database row ID exists; distinct users must not collide.
		index := NewReferenceIndex()
		index.Add(&ReferenceImage{UserID: "user-1", Version: 1, Embedding: []float32{1, 0, 0}})
		index.Add(&ReferenceImage{UserID: "user-2", Version: 1, Embedding: []float32{0, 1, 0}})

		if index.Count() != 2 {
			t.Fatalf("Expected 2 indexed users, got %d", index.Count())
		}
		refs, _, err := index.Search([]float32{0, 1, 0}, 1)
		if err != nil || len(refs) != 1 {
			t.Fatalf("Search failed: refs=%v err=%v", refs, err)
		}
		if refs[0].UserID != "user-2" {
			t.Errorf("Expected user-2 as nearest, got %s", refs[0].UserID)
		}
	})

	t.Run("SameUserReplacesNode", func(t *testing.T) {
		index := NewReferenceIndex()
		index.Add(&ReferenceImage{UserID: "user-1", Version: 1, Embedding: []float32{1, 0, 0}})
		index.Add(&ReferenceImage{UserID: "user-1", Version: 2, Embedding: []float32{0, 0, 1}})

		if index.Count() != 1 {
			t.Fatalf("Expected a single node after re-add, got %d", index.Count())
		}
		refs, distances, err := index.Search([]float32{0, 0, 1}, 1)
		if err != nil || len(refs) != 1 {
			t.Fatalf("Search failed: refs=%v err=%v", refs, err)
		}
		if refs[0].Version != 2 {
			t.Errorf("Expected version 2 indexed, got %d", refs[0].Version)
		}
		if distances[0] > 1e-6 {
			t.Errorf("Expected the newer embedding, distance %f", distances[0])
		}
	})

	t.Run("SkipsEmptyEmbedding", func(t *testing.T) {
		index := NewReferenceIndex()
		index.Add(&ReferenceImage{UserID: "user-1", Version: 1})
		if index.Count() != 0 {
			t.Fatalf("Expected empty index, got %d", index.Count())
		}
	})
}

func TestReferenceIndexBuild(t *testing.T) {
	t.Run("KeepsNewestVersionPerUser", func(t *testing.T) {
		index := NewReferenceIndex()
		err := index.Build([]ReferenceImage{
			{ID: 1, UserID: "user-1", Version: 1, Embedding: []float32{1, 0, 0}},
			{ID: 3, UserID: "user-1", Version: 2, Embedding: []float32{0, 1, 0}},
			{ID: 2, UserID: "user-2", Version: 1, Embedding: []float32{0, 0, 1}},
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if index.Count() != 2 {
			t.Fatalf("Expected 2 users indexed, got %d", index.Count())
		}
		refs, _, err := index.Search([]float32{0, 1, 0}, 1)
		if err != nil || len(refs) != 1 {
			t.Fatalf("Search failed: refs=%v err=%v", refs, err)
		}
		if refs[0].UserID != "user-1" || refs[0].Version != 2 {
			t.Errorf("Expected user-1 v2, got %s v%d", refs[0].UserID, refs[0].Version)
		}
	})

	t.Run("EmptyBuildResetsIndex", func(t *testing.T) {
		index := NewReferenceIndex()
		index.Add(&ReferenceImage{UserID: "user-1", Version: 1, Embedding: []float32{1, 0, 0}})
		if err := index.Build(nil); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if index.Count() != 0 {
			t.Fatalf("Expected reset index, got %d entries", index.Count())
		}
		if _, _, err := index.Search([]float32{1, 0, 0}, 1); err == nil {
			t.Error("Expected search on an empty index to fail")
		}
	})
}
