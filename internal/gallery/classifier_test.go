package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

// uniformVector builds a signature-sized vector with every pixel set to v.
func uniformVector(v float32) []float32 {
	out := make([]float32, signature.Size*signature.Size)
	for i := range out {
		out[i] = v
	}
	return out
}

func uniformSignature(v float32) *signature.Signature {
	return &signature.Signature{Pixels: uniformVector(v)}
}

func seedEmployee(store *mock.EmployeeStore, code string, sigValue float32, active bool) {
	store.Add(database.Employee{
		Code:      code,
		FirstName: "Test",
		LastName:  code,
		Active:    active,
		Signature: uniformVector(sigValue),
	})
}

func TestTrain_EmptyGallery(t *testing.T) {
	store := mock.NewEmployeeStore()
	c := NewClassifier(store)

	if err := c.Train(context.Background()); !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("expected ErrEmptyGallery, got %v", err)
	}
	if c.Trained() {
		t.Error("classifier should not be trained after empty train")
	}
}

func TestRecognize_EmptyGallery(t *testing.T) {
	store := mock.NewEmployeeStore()
	c := NewClassifier(store)

	_, _, err := c.Recognize(context.Background(), uniformSignature(100), DefaultThreshold)
	if !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("expected ErrEmptyGallery, got %v", err)
	}
}

func TestRecognize_RoundTrip(t *testing.T) {
	store := mock.NewEmployeeStore()
	seedEmployee(store, "EMP001", 100, true)
	seedEmployee(store, "EMP002", 200, true)

	c := NewClassifier(store)

	// No explicit Train call: the first recognition must train lazily.
	emp, confidence, err := c.Recognize(context.Background(), uniformSignature(100), DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if emp.Code != "EMP001" {
		t.Errorf("matched %s, want EMP001", emp.Code)
	}
	if confidence < DefaultThreshold {
		t.Errorf("confidence %f below threshold", confidence)
	}
	if confidence != 100 {
		t.Errorf("self-match confidence = %f, want 100", confidence)
	}
}

func TestRecognize_BelowThreshold(t *testing.T) {
	store := mock.NewEmployeeStore()
	seedEmployee(store, "EMP001", 200, true)

	c := NewClassifier(store)

	// Probe is 190 luma levels away: confidence 0 after clamping.
	emp, confidence, err := c.Recognize(context.Background(), uniformSignature(10), DefaultThreshold)
	if !errors.Is(err, ErrNotRecognized) {
		t.Fatalf("expected ErrNotRecognized, got %v", err)
	}
	if emp != nil {
		t.Error("no employee should be returned below threshold")
	}
	if confidence != 0 {
		t.Errorf("confidence = %f, want 0 (negative raw score clamps)", confidence)
	}
}

func TestRecognize_DeactivatedAfterTraining(t *testing.T) {
	store := mock.NewEmployeeStore()
	seedEmployee(store, "EMP001", 100, true)

	c := NewClassifier(store)
	if err := c.Train(context.Background()); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	// Deactivate without invalidating: the stale model still maps to EMP001,
	// but recognition must refuse the match.
	emp, _ := store.GetByCode(context.Background(), "EMP001")
	emp.Active = false
	if err := store.Update(context.Background(), emp); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, confidence, err := c.Recognize(context.Background(), uniformSignature(100), DefaultThreshold)
	if !errors.Is(err, ErrNotRecognized) {
		t.Fatalf("expected ErrNotRecognized, got %v", err)
	}
	if got != nil {
		t.Error("deactivated employee must not be matched")
	}
	if confidence < DefaultThreshold {
		t.Errorf("confidence %f should still reflect the raw score", confidence)
	}
}

func TestRecognize_RetrainsAfterInvalidate(t *testing.T) {
	store := mock.NewEmployeeStore()
	seedEmployee(store, "EMP001", 50, true)

	c := NewClassifier(store)
	if err := c.Train(context.Background()); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	// Enroll a second employee; the classifier only sees it after Invalidate.
	seedEmployee(store, "EMP002", 220, true)
	c.Invalidate()

	emp, confidence, err := c.Recognize(context.Background(), uniformSignature(220), DefaultThreshold)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if emp.Code != "EMP002" {
		t.Errorf("matched %s, want EMP002 after retrain", emp.Code)
	}
	if confidence != 100 {
		t.Errorf("confidence = %f, want 100", confidence)
	}
}

func TestTrain_StoreError(t *testing.T) {
	store := mock.NewEmployeeStore()
	store.ListError = errors.New("connection refused")

	c := NewClassifier(store)
	if err := c.Train(context.Background()); err == nil {
		t.Error("expected error when the store is unavailable")
	}
	if c.Trained() {
		t.Error("failed train must not publish a model")
	}
}

func TestConfidenceFromDistance(t *testing.T) {
	cases := []struct {
		dist float64
		want float64
	}{
		{0, 100},
		{30, 70},
		{100, 0},
		{250, 0}, // clamps, never negative
	}
	for _, tc := range cases {
		if got := confidenceFromDistance(tc.dist); got != tc.want {
			t.Errorf("confidenceFromDistance(%f) = %f, want %f", tc.dist, got, tc.want)
		}
	}
}
