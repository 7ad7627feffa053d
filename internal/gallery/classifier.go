// Package gallery holds the trained face gallery and performs nearest-match
// recognition of probe signatures against enrolled employees.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

// DefaultThreshold is the default minimum confidence (0-100) for a match.
const DefaultThreshold = 50

// hnswMaxNeighbors (M) is the maximum number of neighbors per graph node.
const hnswMaxNeighbors = 16

var (
	// ErrEmptyGallery means no active employee has an enrolled signature, so
	// there is nothing to train on and nothing to recognize against.
	ErrEmptyGallery = errors.New("no enrolled faces to train on")

	// ErrNotRecognized means the probe scored below the confidence threshold
	// or the nearest label no longer resolves to an active employee.
	ErrNotRecognized = errors.New("face not recognized")
)

// Sample is one (signature, employee) training pair.
type Sample struct {
	EmployeeCode string
	Vector       []float32
}

// Model is an immutable trained gallery. A retrain builds a fresh Model and
// publishes it by pointer swap; a published model is never mutated, so
// concurrent Recognize calls can keep reading the version they observed.
type Model struct {
	graph   *hnsw.Graph[string]
	size    int
	builtAt time.Time
}

// Size returns the number of enrolled signatures in the model.
func (m *Model) Size() int {
	return m.size
}

// BuiltAt returns when the model was trained.
func (m *Model) BuiltAt() time.Time {
	return m.builtAt
}

// nearest returns the closest enrolled employee code and the RMS pixel
// distance to its signature.
func (m *Model) nearest(probe []float32) (string, float64, bool) {
	neighbors := m.graph.Search(probe, 1)
	if len(neighbors) == 0 {
		return "", 0, false
	}
	n := neighbors[0]
	return n.Key, rmsDistance(probe, n.Value), true
}

// buildModel trains a model from the given pairs.
func buildModel(samples []Sample) (*Model, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyGallery
	}

	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	for _, s := range samples {
		if len(s.Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(s.EmployeeCode, s.Vector))
	}

	return &Model{graph: g, size: len(samples), builtAt: time.Now()}, nil
}

// rmsDistance is the root-mean-square pixel difference between two
// signatures. Identical signatures score 0; fully opposed ones score 255.
func rmsDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(a)))
}

// confidenceFromDistance converts a raw distance score into a 0-100
// confidence. Higher is better; values below zero clamp to 0.
func confidenceFromDistance(dist float64) float64 {
	c := 100 - dist
	if c < 0 {
		return 0
	}
	return c
}

// Classifier owns the current gallery model. Enrollment paths call
// Invalidate; the next recognition rebuilds from the store before matching,
// so the model is trained at least once before the first recognition and
// never observed half-built.
type Classifier struct {
	store database.EmployeeStore

	trainMu sync.Mutex // serializes retrains and the model swap
	model   atomic.Pointer[Model]
	dirty   atomic.Bool
}

// NewClassifier creates an untrained classifier backed by the employee store.
func NewClassifier(store database.EmployeeStore) *Classifier {
	c := &Classifier{store: store}
	c.dirty.Store(true)
	return c
}

// Invalidate marks the current model stale. Any write to the gallery
// (enrollment, deactivation, deletion) must call this; the rebuild itself is
// deferred to the next recognition or explicit Train.
func (c *Classifier) Invalidate() {
	c.dirty.Store(true)
}

// Trained reports whether a usable model is currently published.
func (c *Classifier) Trained() bool {
	return c.model.Load() != nil
}

// CurrentModel returns the published model, or nil when untrained.
func (c *Classifier) CurrentModel() *Model {
	return c.model.Load()
}

// Train rebuilds the model from all active employees with an enrolled
// signature and publishes it atomically. Fails with ErrEmptyGallery when
// there are no trainable pairs; the stale flag stays set in that case so a
// later enrollment triggers another attempt.
func (c *Classifier) Train(ctx context.Context) error {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	// Clear the flag before reading the store: an invalidation racing with
	// this load re-marks the model stale rather than being swallowed.
	c.dirty.Store(false)

	employees, err := c.store.ListEnrolled(ctx)
	if err != nil {
		c.dirty.Store(true)
		return fmt.Errorf("loading gallery: %w", err)
	}

	samples := make([]Sample, 0, len(employees))
	for _, e := range employees {
		samples = append(samples, Sample{EmployeeCode: e.Code, Vector: e.Signature})
	}

	model, err := buildModel(samples)
	if err != nil {
		c.dirty.Store(true)
		c.model.Store(nil)
		return err
	}

	c.model.Store(model)
	return nil
}

// ensureFresh retrains when the model is missing or stale.
func (c *Classifier) ensureFresh(ctx context.Context) error {
	if !c.dirty.Load() && c.model.Load() != nil {
		return nil
	}
	return c.Train(ctx)
}

// Recognize matches a probe signature against the gallery. On success it
// returns the matched employee and the confidence; otherwise the confidence
// scored so far plus ErrEmptyGallery or ErrNotRecognized. A match is only
// accepted when the confidence clears the threshold and the nearest label
// still resolves to an active employee.
func (c *Classifier) Recognize(ctx context.Context, sig *signature.Signature, threshold float64) (*database.Employee, float64, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, 0, err
	}

	model := c.model.Load()
	if model == nil {
		return nil, 0, ErrEmptyGallery
	}

	code, dist, ok := model.nearest(sig.Vector())
	if !ok {
		return nil, 0, ErrEmptyGallery
	}

	confidence := confidenceFromDistance(dist)
	if confidence < threshold {
		return nil, confidence, ErrNotRecognized
	}

	emp, err := c.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, confidence, ErrNotRecognized
		}
		return nil, confidence, fmt.Errorf("resolving match %s: %w", code, err)
	}
	if !emp.Active {
		// Deactivated after training; the stale model may still point here.
		return nil, confidence, ErrNotRecognized
	}

	return emp, confidence, nil
}
