package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/veriface/attendance/internal/face"
)

// FaceCounter answers how many faces an image contains.
type FaceCounter interface {
	CountFaces(ctx context.Context, imageData []byte) (int, error)
}

// DetailedMatcher scores two images and exposes the embeddings behind the
// score.
type DetailedMatcher interface {
	CompareDetailed(ctx context.Context, referenceImage, capturedImage []byte) (*face.Comparison, error)
}

// FacesHandler serves the stateless detection and comparison endpoints.
type FacesHandler struct {
	counter       FaceCounter
	matcher       DetailedMatcher
	maxImageBytes int64
	metrics       *Metrics
}

// NewFacesHandler creates a faces handler.
func NewFacesHandler(counter FaceCounter, matcher DetailedMatcher, maxImageBytes int64, metrics *Metrics) *FacesHandler {
	return &FacesHandler{
		counter:       counter,
		matcher:       matcher,
		maxImageBytes: maxImageBytes,
		metrics:       metrics,
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

// DetectFace handles POST /detect-face. The image arrives either as a JSON
// base64 data URL or as a multipart "image" file.
func (h *FacesHandler) DetectFace(w http.ResponseWriter, r *http.Request) {
	imageData, ok := h.readDetectImage(w, r)
	if !ok {
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

	count, err := h.counter.CountFaces(r.Context(), imageData)
	if err != nil {
		log.Printf("Face detection failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Face detection failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"face_detected": count > 0,
		"face_count":    count,
	})
}

// readDetectImage extracts the image payload from a JSON body or a
// multipart form. Writes the error response itself on failure.
func (h *FacesHandler) readDetectImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, _, err := r.FormFile("image")
		if err != nil {
			respondError(w, http.StatusBadRequest, "No image provided")
			return nil, false
		}
		defer file.Close()

		data, err := readLimited(file, h.maxImageBytes)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Image size exceeds the 5MB limit")
			return nil, false
		}
		return data, true
	}

	var req detectRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return nil, false
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "No image provided")
		return nil, false
	}

	data, err := face.DecodeDataURL(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Image could not be decoded")
		return nil, false
	}
	return data, true
}

// CompareFaces handles POST /compare-faces. Multipart form with required
// profile_image and current_image files; user_id and class_id ride along as
// opaque correlation fields and never influence the score.
func (h *FacesHandler) CompareFaces(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(2 * h.maxImageBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	profileImage, ok := h.readFormImage(w, r, "profile_image")
	if !ok {
		return
	}
	currentImage, ok := h.readFormImage(w, r, "current_image")
	if !ok {
		return
	}

	started := time.Now()
	comparison, err := h.matcher.CompareDetailed(r.Context(), profileImage, currentImage)
	if h.metrics != nil {
		h.metrics.FaceComparisons.Inc()
		h.metrics.ComparisonSeconds.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		h.respondCompareError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"match_percentage": comparison.MatchPercentage,
		"message":          "Face comparison successful",
	})
}

// respondCompareError maps face engine failures to the endpoint's error
// contract: specific 400s for image problems, a generic 500 for backend
// failures with the detail kept in the server log.
func (h *FacesHandler) respondCompareError(w http.ResponseWriter, r *http.Request, err error) {
	var noFace *face.NoFaceError
	if errors.As(err, &noFace) {
		if noFace.Reason == "multiple" {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Multiple faces found in %s image", noFace.Image))
		} else {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("No face found in %s image", noFace.Image))
		}
		return
	}
	if errors.Is(err, face.ErrDecode) || errors.Is(err, face.ErrTooLarge) {
		respondError(w, http.StatusBadRequest, "Image could not be decoded")
		return
	}

	log.Printf("Face comparison failed for user %s: %v", sanitizeForLog(r.FormValue("user_id")), err)
	respondError(w, http.StatusInternalServerError, "Face comparison failed")
}

// readFormImage pulls one required image file out of the parsed form.
func (h *FacesHandler) readFormImage(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	file, _, err := r.FormFile(field)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Missing required file: %s", field))
		return nil, false
	}
	defer file.Close()

	data, err := readLimited(file, h.maxImageBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Image size exceeds the 5MB limit")
		return nil, false
	}
	return data, true
}

// readLimited reads at most maxBytes from the file, failing when the
// payload is larger.
func readLimited(file multipart.File, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, face.ErrTooLarge
	}
	return data, nil
}
