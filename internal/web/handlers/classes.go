package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/veriface/attendance/internal/catalog"
	"github.com/veriface/attendance/internal/database"
)

// ClassesHandler serves class session scheduling and enrollment.
type ClassesHandler struct {
	classes database.ClassStore
	catalog *catalog.Catalog
}

// NewClassesHandler creates a classes handler.
func NewClassesHandler(classes database.ClassStore, cat *catalog.Catalog) *ClassesHandler {
	return &ClassesHandler{classes: classes, catalog: cat}
}

type classResponse struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	Department  string    `json:"department"`
	TeacherID   string    `json:"teacher_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Ongoing     bool      `json:"ongoing"`
}

func toClassResponse(class database.StoredClass, now time.Time) classResponse {
	return classResponse{
		ID:          class.ID,
		SubjectID:   class.SubjectID,
		SubjectName: class.SubjectName,
		Department:  class.Department,
		TeacherID:   class.TeacherID,
		StartTime:   class.StartTime,
		EndTime:     class.EndTime,
		Ongoing:     class.Ongoing(now),
	}
}

// List handles GET /api/v1/classes with subject_id/teacher_id filters.
func (h *ClassesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := database.ClassFilter{
		SubjectID: r.URL.Query().Get("subject_id"),
		TeacherID: r.URL.Query().Get("teacher_id"),
	}
	if v := r.URL.Query().Get("day"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		filter.Day = day
	}

	classes, err := h.classes.List(r.Context(), filter)
	if err != nil {
		log.Printf("Failed to list classes: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list classes")
		return
	}

	now := time.Now()
	responses := make([]classResponse, 0, len(classes))
	for _, class := range classes {
		responses = append(responses, toClassResponse(class, now))
	}
	respondJSON(w, http.StatusOK, map[string]any{"classes": responses})
}

type createClassRequest struct {
	SubjectID string    `json:"subject_id"`
	TeacherID string    `json:"teacher_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Create handles POST /api/v1/classes. A subject may only have one session
// that has not ended yet.
func (h *ClassesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SubjectID == "" || req.TeacherID == "" {
		respondError(w, http.StatusBadRequest, "subject_id and teacher_id are required")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() || !req.EndTime.After(req.StartTime) {
		respondError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	subject := h.catalog.Lookup(req.SubjectID)
	if subject == nil {
		respondError(w, http.StatusBadRequest, "unknown subject_id")
		return
	}

	class := database.StoredClass{
		ID:          uuid.NewString(),
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Department:  subject.Department,
		TeacherID:   req.TeacherID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}

	err := h.classes.Create(r.Context(), class)
	if errors.Is(err, database.ErrSessionConflict) {
		respondError(w, http.StatusConflict, "Subject already has an active or upcoming session")
		return
	}
	if err != nil {
		log.Printf("Failed to create class: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create class")
		return
	}

	respondJSON(w, http.StatusCreated, toClassResponse(class, time.Now()))
}

type enrollRequest struct {
	UserID    string `json:"user_id"`
	SubjectID string `json:"subject_id"`
}

// Enroll handles POST /api/v1/enrollments. Idempotent.
func (h *ClassesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == "" || req.SubjectID == "" {
		respondError(w, http.StatusBadRequest, "user_id and subject_id are required")
		return
	}
	if h.catalog.Lookup(req.SubjectID) == nil {
		respondError(w, http.StatusBadRequest, "unknown subject_id")
		return
	}

	if err := h.classes.Enroll(r.Context(), req.UserID, req.SubjectID); err != nil {
		log.Printf("Failed to enroll user %s: %v", sanitizeForLog(req.UserID), err)
		respondError(w, http.StatusInternalServerError, "Failed to enroll user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "enrolled"})
}

// SubjectsHandler serves the static subject catalog.
type SubjectsHandler struct {
	catalog *catalog.Catalog
}

// NewSubjectsHandler creates a subjects handler.
func NewSubjectsHandler(cat *catalog.Catalog) *SubjectsHandler {
	return &SubjectsHandler{catalog: cat}
}

type subjectResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`
}

// List handles GET /api/v1/subjects?department=&semester=.
func (h *SubjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		respondJSON(w, http.StatusOK, map[string]any{"departments": h.catalog.Departments()})
		return
	}

	semesterParam := r.URL.Query().Get("semester")
	if semesterParam == "" {
		respondError(w, http.StatusBadRequest, "semester is required with department")
		return
	}
	semester, err := strconv.Atoi(semesterParam)
	if err != nil || semester < 1 || semester > 8 {
		respondError(w, http.StatusBadRequest, "semester must be between 1 and 8")
		return
	}

	subjects := h.catalog.Subjects(department, semester)
	responses := make([]subjectResponse, 0, len(subjects))
	for _, s := range subjects {
		responses = append(responses, subjectResponse{
			ID:         s.ID,
			Name:       s.Name,
			Department: s.Department,
			Semester:   s.Semester,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"subjects": responses})
}
