package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/broadcast"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

// RecognizeHandler handles the camera snapshot recognition endpoint.
type RecognizeHandler struct {
	extractor  *signature.Extractor
	classifier *gallery.Classifier
	engine     *attendance.Engine
	hub        *broadcast.Hub
	threshold  float64

	// now is replaceable in tests.
	now func() time.Time
}

// NewRecognizeHandler creates a new recognition handler.
func NewRecognizeHandler(
	extractor *signature.Extractor,
	classifier *gallery.Classifier,
	engine *attendance.Engine,
	hub *broadcast.Hub,
	threshold float64,
) *RecognizeHandler {
	return &RecognizeHandler{
		extractor:  extractor,
		classifier: classifier,
		engine:     engine,
		hub:        hub,
		threshold:  threshold,
		now:        time.Now,
	}
}

type recognizeRequest struct {
	Image string `json:"image"`
}

type recognizeResponse struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message,omitempty"`
	EmployeeName string  `json:"employee_name,omitempty"`
	EmployeeID   string  `json:"employee_id,omitempty"`
	Action       string  `json:"action,omitempty"`
	Timestamp    string  `json:"timestamp,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

func respondRecognizeFailure(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, recognizeResponse{Success: false, Message: message})
}

// Recognize accepts a base64 data URI snapshot, matches it against the
// enrolled gallery, and records the derived check-in or check-out. The
// attendance event is persisted before the success response; the broadcast is
// fire-and-forget afterwards.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondRecognizeFailure(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Image == "" {
		respondRecognizeFailure(w, http.StatusBadRequest, "image is required")
		return
	}

	sig, err := h.extractor.Extract(req.Image)
	if err != nil {
		switch {
		case errors.Is(err, signature.ErrDecode):
			respondRecognizeFailure(w, http.StatusBadRequest, "Invalid image data")
		case errors.Is(err, signature.ErrNoFace):
			respondRecognizeFailure(w, http.StatusBadRequest, "No face detected in the image")
		case errors.Is(err, signature.ErrAmbiguousFace):
			respondRecognizeFailure(w, http.StatusBadRequest, "Multiple faces detected. Please ensure only one face is visible")
		default:
			log.Printf("recognize: extracting signature: %v", err)
			respondRecognizeFailure(w, http.StatusInternalServerError, "failed to process image")
		}
		return
	}

	emp, confidence, err := h.classifier.Recognize(r.Context(), sig, h.threshold)
	if err != nil {
		switch {
		case errors.Is(err, gallery.ErrEmptyGallery):
			respondRecognizeFailure(w, http.StatusBadRequest, "No employee faces found for training")
		case errors.Is(err, gallery.ErrNotRecognized):
			respondJSON(w, http.StatusOK, recognizeResponse{
				Success:    false,
				Message:    "Face not recognized",
				Confidence: confidence,
			})
		default:
			log.Printf("recognize: matching face: %v", err)
			respondRecognizeFailure(w, http.StatusInternalServerError, "recognition failed")
		}
		return
	}

	now := h.now()
	rec, _, err := h.engine.Record(r.Context(), emp, confidence, now)
	if err != nil {
		log.Printf("recognize: recording attendance for %s: %v", sanitizeForLog(emp.Code), err)
		respondRecognizeFailure(w, http.StatusInternalServerError, "failed to record attendance")
		return
	}

	h.hub.PublishEvent(broadcast.Event{
		EmployeeName: emp.FullName(),
		EmployeeID:   emp.Code,
		Department:   emp.Department,
		Action:       rec.Type.Label(),
		Timestamp:    rec.Timestamp.Format(time.RFC3339),
		Confidence:   confidence,
	})

	respondJSON(w, http.StatusOK, recognizeResponse{
		Success:      true,
		EmployeeName: emp.FullName(),
		EmployeeID:   emp.Code,
		Action:       rec.Type.Label(),
		Timestamp:    rec.Timestamp.Format(time.RFC3339),
		Confidence:   confidence,
	})
}
