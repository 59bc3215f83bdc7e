package face

import (
	"context"
	"fmt"
	"math"
)

// Matcher scores the similarity of two face images on a 0–100 scale. The
// accept/reject threshold is owned by the decision engine, keeping this
// component policy-free.
type Matcher interface {
	Compare(ctx context.Context, referenceImage, capturedImage []byte) (float64, error)
}

// Comparison carries the score together with the embeddings that produced
// it, so callers can cache the captured embedding alongside a new
// reference version instead of re-embedding the same image later.
type Comparison struct {
	MatchPercentage    float64
	ReferenceEmbedding []float32
	CapturedEmbedding  []float32
}

// ServiceMatcher implements Matcher by embedding both images through the
// face-analysis backend and scoring the embeddings with cosine similarity.
// Deterministic for byte-identical inputs as long as the backend model is.
type ServiceMatcher struct {
	client *Client
}

// NewServiceMatcher wraps a Client as a Matcher.
func NewServiceMatcher(client *Client) *ServiceMatcher {
	return &ServiceMatcher{client: client}
}

// Compare returns the match percentage in [0,100], rounded to two decimals.
// Each image must contain exactly one detectable face.
func (m *ServiceMatcher) Compare(ctx context.Context, referenceImage, capturedImage []byte) (float64, error) {
	result, err := m.CompareDetailed(ctx, referenceImage, capturedImage)
	if err != nil {
		return 0, err
	}
	return result.MatchPercentage, nil
}

// CompareDetailed is Compare plus the embeddings behind the score.
func (m *ServiceMatcher) CompareDetailed(ctx context.Context, referenceImage, capturedImage []byte) (*Comparison, error) {
	refData, err := m.prepare("profile", referenceImage)
	if err != nil {
		return nil, err
	}
	curData, err := m.prepare("current", capturedImage)
	if err != nil {
		return nil, err
	}

	refEmbedding, err := m.client.singleFaceEmbedding(ctx, "profile", refData)
	if err != nil {
		return nil, err
	}
	curEmbedding, err := m.client.singleFaceEmbedding(ctx, "current", curData)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		MatchPercentage:    MatchPercentage(refEmbedding, curEmbedding),
		ReferenceEmbedding: refEmbedding,
		CapturedEmbedding:  curEmbedding,
	}, nil
}

// prepare validates and normalizes one input image, tagging decode failures
// with the image name.
func (m *ServiceMatcher) prepare(name string, data []byte) ([]byte, error) {
	if err := ValidateImage(data, 0); err != nil {
		return nil, fmt.Errorf("%s image: %w", name, err)
	}
	normalized, err := NormalizeImage(data, MaxUploadDimension)
	if err != nil {
		return nil, fmt.Errorf("%s image: %w", name, err)
	}
	return normalized, nil
}

// MatchPercentage converts two embeddings into the 0–100 similarity score:
// (1 - cosine distance) × 100, clamped and rounded to two decimals.
func MatchPercentage(a, b []float32) float64 {
	sim := CosineSimilarity(a, b)
	pct := sim * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*100) / 100
}
