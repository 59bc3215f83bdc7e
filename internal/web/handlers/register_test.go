package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/database/mock"
	"github.com/veriface/attendance/internal/face"
)

func registerBody(t *testing.T, userID string) map[string]any {
	t.Helper()
	return map[string]any{
		"user_id":    userID,
		"name":       "Test Student",
		"department": "CSE",
		"semester":   3,
		"image":      testDataURL(testJPEG(t)),
	}
}

func TestRegister(t *testing.T) {
	t.Run("FirstEnrollment", func(t *testing.T) {
		users := mock.NewMockUserStore()
		index := database.NewReferenceIndex()
		h := NewRegisterHandler(&fakeEmbedder{embedding: []float32{1, 0, 0}}, users, index, 5<<20)

		req := jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-1"))
		rec := httptest.NewRecorder()
		h.Register(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeResponse(t, rec.Body)
		if body["version"] != float64(1) {
			t.Errorf("Expected version 1, got %v", body["version"])
		}

		ref, err := users.CurrentReference(context.Background(), "user-1")
		if err != nil || ref == nil {
			t.Fatalf("Expected stored reference, got %v/%v", ref, err)
		}
		if len(ref.Embedding) != 3 {
			t.Error("Expected cached embedding on the reference")
		}
		if index.Count() != 1 {
			t.Errorf("Expected 1 indexed reference, got %d", index.Count())
		}

		user, err := users.Get(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Expected user profile, got %v", err)
		}
		if user.Role != database.RoleStudent {
			t.Errorf("Expected default student role, got %s", user.Role)
		}
	})

	t.Run("ReRegistrationBumpsVersion", func(t *testing.T) {
		users := mock.NewMockUserStore()
		index := database.NewReferenceIndex()
		h := NewRegisterHandler(&fakeEmbedder{embedding: []float32{1, 0, 0}}, users, index, 5<<20)

		for range 2 {
			req := jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-1"))
			rec := httptest.NewRecorder()
			h.Register(rec, req)
			if rec.Code != http.StatusCreated {
				t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
			}
		}

		ref, _ := users.CurrentReference(context.Background(), "user-1")
		if ref.Version != 2 {
			t.Errorf("Expected version 2, got %d", ref.Version)
		}
		// Only the newest version stays indexed.
		if index.Count() != 1 {
			t.Errorf("Expected 1 indexed reference, got %d", index.Count())
		}
	})

	t.Run("DuplicateFaceRejected", func(t *testing.T) {
		users := mock.NewMockUserStore()
		index := database.NewReferenceIndex()
		h := NewRegisterHandler(&fakeEmbedder{embedding: []float32{1, 0, 0}}, users, index, 5<<20)

		req := jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-1"))
		rec := httptest.NewRecorder()
		h.Register(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rec.Code)
		}

		// Identical embedding under a different user ID.
		req = jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-2"))
		rec = httptest.NewRecorder()
		h.Register(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("Expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
		if _, err := users.Get(context.Background(), "user-2"); err == nil {
			t.Error("Expected no profile created for rejected enrollment")
		}
	})

	t.Run("DistinctFaceAccepted", func(t *testing.T) {
		users := mock.NewMockUserStore()
		index := database.NewReferenceIndex()

		embedder := &fakeEmbedder{embedding: []float32{1, 0, 0}}
		h := NewRegisterHandler(embedder, users, index, 5<<20)

		req := jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-1"))
		rec := httptest.NewRecorder()
		h.Register(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rec.Code)
		}

		// Orthogonal embedding scores 0%.
		embedder.embedding = []float32{0, 1, 0}
		req = jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-2"))
		rec = httptest.NewRecorder()
		h.Register(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if index.Count() != 2 {
			t.Errorf("Expected 2 indexed references, got %d", index.Count())
		}
	})

	t.Run("NoFaceInImage", func(t *testing.T) {
		users := mock.NewMockUserStore()
		h := NewRegisterHandler(&fakeEmbedder{err: &face.NoFaceError{Image: "profile", Reason: "none"}}, users, nil, 5<<20)

		req := jsonRequest(t, http.MethodPost, "/api/v1/register-face", registerBody(t, "user-1"))
		rec := httptest.NewRecorder()
		h.Register(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("MissingUserID", func(t *testing.T) {
		h := NewRegisterHandler(&fakeEmbedder{}, mock.NewMockUserStore(), nil, 5<<20)

		body := registerBody(t, "")
		req := jsonRequest(t, http.MethodPost, "/api/v1/register-face", body)
		rec := httptest.NewRecorder()
		h.Register(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})
}
