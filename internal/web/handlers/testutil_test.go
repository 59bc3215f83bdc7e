package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veriface/attendance/internal/attendance"
	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/face"
)

// newTestMetrics creates metrics on a throwaway registry.
func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// testJPEG returns a small encoded JPEG.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

// testDataURL wraps an encoded image as a base64 data URL.
func testDataURL(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart request with file and value fields.
func multipartRequest(t *testing.T, path string, files map[string][]byte, values map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, data := range files {
		part, err := mw.CreateFormFile(field, field+".jpg")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("Failed to write form file: %v", err)
		}
	}
	for field, value := range values {
		if err := mw.WriteField(field, value); err != nil {
			t.Fatalf("Failed to write form field: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// decodeResponse parses a JSON response body.
func decodeResponse(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var parsed map[string]any
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return parsed
}

// fakeCounter is a canned FaceCounter.
type fakeCounter struct {
	count int
	err   error
}

func (f *fakeCounter) CountFaces(ctx context.Context, imageData []byte) (int, error) {
	return f.count, f.err
}

// fakeMatcher is a canned DetailedMatcher.
type fakeMatcher struct {
	comparison *face.Comparison
	err        error
}

func (f *fakeMatcher) CompareDetailed(ctx context.Context, referenceImage, capturedImage []byte) (*face.Comparison, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.comparison, nil
}

// fakeEmbedder is a canned Embedder.
type fakeEmbedder struct {
	embedding []float32
	err       error
}

func (f *fakeEmbedder) EmbedSingleFace(ctx context.Context, imageName string, imageData []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

// fakeGeocoder records the lookup and returns a fixed name.
type fakeGeocoder struct {
	name   string
	called bool
}

func (f *fakeGeocoder) ReverseLookup(ctx context.Context, latitude, longitude float64) string {
	f.called = true
	return f.name
}

// fakeEngine is a canned DecisionEngine that records its inputs.
type fakeEngine struct {
	decision *attendance.Decision
	err      error
	swept    int
	sweepErr error

	gotUserID   string
	gotLocation attendance.Location
	gotImage    []byte
}

func (f *fakeEngine) Decide(ctx context.Context, userID string, class *database.StoredClass, capturedImage []byte, loc attendance.Location, now time.Time) (*attendance.Decision, error) {
	f.gotUserID = userID
	f.gotLocation = loc
	f.gotImage = capturedImage
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func (f *fakeEngine) Sweep(ctx context.Context, class *database.StoredClass, enrolledUserIDs []string, now time.Time) (int, error) {
	return f.swept, f.sweepErr
}
