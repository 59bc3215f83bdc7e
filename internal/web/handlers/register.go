package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/face"
)

// DuplicateEnrollmentThreshold is the match percentage above which a new
// reference is considered the same face as an already-enrolled user.
const DuplicateEnrollmentThreshold = 90.0

// Embedder extracts the embedding of an image's only face.
type Embedder interface {
	EmbedSingleFace(ctx context.Context, imageName string, imageData []byte) ([]float32, error)
}

// RegisterHandler serves initial face enrollment.
type RegisterHandler struct {
	embedder      Embedder
	users         database.UserStore
	index         *database.ReferenceIndex
	maxImageBytes int64
}

// NewRegisterHandler creates a registration handler.
func NewRegisterHandler(embedder Embedder, users database.UserStore, index *database.ReferenceIndex, maxImageBytes int64) *RegisterHandler {
	return &RegisterHandler{
		embedder:      embedder,
		users:         users,
		index:         index,
		maxImageBytes: maxImageBytes,
	}
}

type registerRequest struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`
	Image      string `json:"image"` // base64 data URL
}

// Register handles POST /api/v1/register-face. The image must contain
// exactly one face; the stored still becomes the user's first reference
// version (or the next one on re-registration). A face that matches another
// enrolled user above DuplicateEnrollmentThreshold is rejected.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "No image provided")
		return
	}

	imageData, err := face.DecodeDataURL(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Image could not be decoded")
		return
	}
	if err := face.ValidateImage(imageData, h.maxImageBytes); err != nil {
		if errors.Is(err, face.ErrTooLarge) {
			respondError(w, http.StatusBadRequest, "Image size exceeds the 5MB limit")
			return
		}
		respondError(w, http.StatusBadRequest, "Image could not be decoded")
		return
	}

	normalized, err := face.NormalizeImage(imageData, face.MaxUploadDimension)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Image could not be decoded")
		return
	}

	embedding, err := h.embedder.EmbedSingleFace(r.Context(), "profile", normalized)
	if err != nil {
		var noFace *face.NoFaceError
		if errors.As(err, &noFace) {
			respondError(w, http.StatusBadRequest, noFace.Error())
			return
		}
		log.Printf("Face embedding failed for user %s: %v", sanitizeForLog(req.UserID), err)
		respondError(w, http.StatusInternalServerError, "Face registration failed")
		return
	}

	if duplicate := h.findDuplicate(req.UserID, embedding); duplicate != "" {
		respondError(w, http.StatusConflict, "This face is already enrolled for another user")
		return
	}

	role := database.Role(req.Role)
	if role == "" {
		role = database.RoleStudent
	}
	if err := h.users.Upsert(r.Context(), database.StoredUser{
		ID:         req.UserID,
		Name:       req.Name,
		Email:      req.Email,
		Role:       role,
		Department: req.Department,
		Semester:   req.Semester,
	}); err != nil {
		log.Printf("Failed to upsert user %s: %v", sanitizeForLog(req.UserID), err)
		respondError(w, http.StatusInternalServerError, "Face registration failed")
		return
	}

	ref := database.ReferenceImage{
		UserID:    req.UserID,
		Image:     imageData,
		Embedding: embedding,
	}
	version, err := h.users.AddReference(r.Context(), ref)
	if err != nil {
		log.Printf("Failed to store reference for user %s: %v", sanitizeForLog(req.UserID), err)
		respondError(w, http.StatusInternalServerError, "Face registration failed")
		return
	}

	if h.index != nil {
		ref.Version = version
		h.index.Add(&ref)
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id": req.UserID,
		"version": version,
	})
}

// findDuplicate returns the ID of an already-enrolled user whose current
// reference matches the embedding above the duplicate threshold, excluding
// the registering user themselves.
func (h *RegisterHandler) findDuplicate(userID string, embedding []float32) string {
	if h.index == nil || h.index.Count() == 0 {
		return ""
	}

	refs, distances, err := h.index.Search(embedding, 3)
	if err != nil {
		log.Printf("Duplicate enrollment search failed: %v", err)
		return ""
	}
	for i, ref := range refs {
		if ref.UserID == userID {
			continue
		}
		if pct := (1 - distances[i]) * 100; pct >= DuplicateEnrollmentThreshold {
			return ref.UserID
		}
	}
	return ""
}
