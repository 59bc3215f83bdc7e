package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veriface/attendance/internal/attendance"
	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/face"
)

// Geocoder resolves coordinates to a display name, best-effort.
type Geocoder interface {
	ReverseLookup(ctx context.Context, latitude, longitude float64) string
}

// DecisionEngine is the attendance gate consumed by the handler.
type DecisionEngine interface {
	Decide(ctx context.Context, userID string, class *database.StoredClass, capturedImage []byte, loc attendance.Location, now time.Time) (*attendance.Decision, error)
	Sweep(ctx context.Context, class *database.StoredClass, enrolledUserIDs []string, now time.Time) (int, error)
}

// AttendanceHandler serves the attendance marking and administration API.
type AttendanceHandler struct {
	engine        DecisionEngine
	records       database.RecordStore
	classes       database.ClassStore
	geocoder      Geocoder
	index         *database.ReferenceIndex
	maxImageBytes int64
	metrics       *Metrics
}

// NewAttendanceHandler creates an attendance handler.
func NewAttendanceHandler(engine DecisionEngine, records database.RecordStore, classes database.ClassStore, geocoder Geocoder, index *database.ReferenceIndex, maxImageBytes int64, metrics *Metrics) *AttendanceHandler {
	return &AttendanceHandler{
		engine:        engine,
		records:       records,
		classes:       classes,
		geocoder:      geocoder,
		index:         index,
		maxImageBytes: maxImageBytes,
		metrics:       metrics,
	}
}

type markRequest struct {
	UserID    string  `json:"user_id"`
	ClassID   string  `json:"class_id"`
	Image     string  `json:"image"` // base64 data URL
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// recordResponse is the wire shape of one attendance record. The captured
// image stays out of listings.
type recordResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ClassID         string    `json:"class_id"`
	SubjectID       string    `json:"subject_id"`
	SubjectName     string    `json:"subject_name"`
	TeacherID       string    `json:"teacher_id"`
	Timestamp       time.Time `json:"timestamp"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	LocationName    string    `json:"location_name"`
	MatchPercentage float64   `json:"match_percentage"`
	Status          string    `json:"status"`
	Verified        bool      `json:"verified"`
}

func toRecordResponse(record database.StoredRecord) recordResponse {
	return recordResponse{
		ID:              record.ID,
		UserID:          record.UserID,
		ClassID:         record.ClassID,
		SubjectID:       record.SubjectID,
		SubjectName:     record.SubjectName,
		TeacherID:       record.TeacherID,
		Timestamp:       record.Timestamp,
		Latitude:        record.Latitude,
		Longitude:       record.Longitude,
		LocationName:    record.LocationName,
		MatchPercentage: record.MatchPercentage,
		Status:          string(record.Status),
		Verified:        record.Verified,
	}
}

// Mark handles POST /api/v1/attendance: the full server-side gate for one
// capture.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == "" || req.ClassID == "" {
		respondError(w, http.StatusBadRequest, "user_id and class_id are required")
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

	class, err := h.classes.Get(r.Context(), req.ClassID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Class session not found")
		return
	}
	if err != nil {
		log.Printf("Failed to load class %s: %v", sanitizeForLog(req.ClassID), err)
		respondError(w, http.StatusInternalServerError, "Failed to load class session")
		return
	}

	loc := attendance.Location{Latitude: req.Latitude, Longitude: req.Longitude}
	if loc.Valid() && h.geocoder != nil {
		// Best-effort; never blocks the flow.
		loc.Name = h.geocoder.ReverseLookup(r.Context(), loc.Latitude, loc.Longitude)
	}

	decision, err := h.engine.Decide(r.Context(), req.UserID, class, imageData, loc, time.Now())
	if err != nil {
		h.respondDecideError(w, req.UserID, err)
		return
	}

	if h.metrics != nil {
		h.metrics.AttendanceMarked.WithLabelValues(string(decision.Status)).Inc()
	}

	// The accepted capture is now the user's reference; keep the
	// duplicate-enrollment index pointed at it.
	if h.index != nil {
		h.index.Add(&database.ReferenceImage{
			UserID:    req.UserID,
			Version:   decision.ReferenceVersion,
			Embedding: decision.CapturedEmbedding,
		})
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"record_id":        decision.RecordID,
		"status":           string(decision.Status),
		"match_percentage": decision.MatchPercentage,
		"location_name":    loc.Name,
	})
}

func (h *AttendanceHandler) respondDecideError(w http.ResponseWriter, userID string, err error) {
	if mismatch, ok := attendance.IsMismatch(err); ok {
		if h.metrics != nil {
			h.metrics.FaceMismatches.Inc()
		}
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":            "Face does not match",
			"match_percentage": mismatch.Percentage,
		})
		return
	}

	var noFace *face.NoFaceError
	switch {
	case errors.Is(err, attendance.ErrAlreadyMarked), errors.Is(err, database.ErrDuplicateRecord):
		respondError(w, http.StatusConflict, "Attendance already marked for this class")
	case errors.Is(err, database.ErrConcurrentUpdate):
		respondError(w, http.StatusConflict, "Another update for this user is in progress, please retry")
	case errors.Is(err, attendance.ErrMissingReference):
		respondError(w, http.StatusBadRequest, "No reference image found; complete face registration first")
	case errors.Is(err, attendance.ErrMissingLocation):
		respondError(w, http.StatusBadRequest, "Location is required to mark attendance")
	case errors.As(err, &noFace):
		respondError(w, http.StatusBadRequest, noFace.Error())
	case errors.Is(err, face.ErrDecode):
		respondError(w, http.StatusBadRequest, "Image could not be decoded")
	default:
		log.Printf("Attendance decision failed for user %s: %v", sanitizeForLog(userID), err)
		respondError(w, http.StatusInternalServerError, "Attendance marking failed")
	}
}

// List handles GET /api/v1/attendance with user_id/class_id filters.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := database.RecordFilter{
		UserID:  r.URL.Query().Get("user_id"),
		ClassID: r.URL.Query().Get("class_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	records, err := h.records.List(r.Context(), filter)
	if err != nil {
		log.Printf("Failed to list attendance records: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list attendance records")
		return
	}

	responses := make([]recordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toRecordResponse(record))
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": responses})
}

type overrideRequest struct {
	Status   string `json:"status"`
	Verified bool   `json:"verified"`
}

// Override handles PUT /api/v1/attendance/{id}: the teacher administrative
// path, the only way a record changes after creation.
func (h *AttendanceHandler) Override(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req overrideRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	status := database.Status(req.Status)
	switch status {
	case database.StatusPresent, database.StatusLate, database.StatusAbsent:
	default:
		respondError(w, http.StatusBadRequest, "status must be Present, Late or Absent")
		return
	}

	err := h.records.Override(r.Context(), id, status, req.Verified)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Attendance record not found")
		return
	}
	if err != nil {
		log.Printf("Failed to override record %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "Failed to override attendance record")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type sweepRequest struct {
	ClassID string `json:"class_id"`
}

// Sweep handles POST /api/v1/attendance/sweep: marks every enrolled student
// without a record as Absent once the class has ended.
func (h *AttendanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ClassID == "" {
		respondError(w, http.StatusBadRequest, "class_id is required")
		return
	}

	class, err := h.classes.Get(r.Context(), req.ClassID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Class session not found")
		return
	}
	if err != nil {
		log.Printf("Failed to load class %s: %v", sanitizeForLog(req.ClassID), err)
		respondError(w, http.StatusInternalServerError, "Failed to load class session")
		return
	}

	enrolled, err := h.classes.EnrolledUserIDs(r.Context(), class.SubjectID)
	if err != nil {
		log.Printf("Failed to list enrollment for %s: %v", sanitizeForLog(class.SubjectID), err)
		respondError(w, http.StatusInternalServerError, "Failed to list enrolled students")
		return
	}

	swept, err := h.engine.Sweep(r.Context(), class, enrolled, time.Now())
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	if h.metrics != nil && swept > 0 {
		h.metrics.AttendanceMarked.WithLabelValues(string(database.StatusAbsent)).Add(float64(swept))
	}

	respondJSON(w, http.StatusOK, map[string]any{"swept": swept})
}
