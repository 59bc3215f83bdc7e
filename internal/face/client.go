package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultServiceURL     = "http://localhost:8000"
	defaultServiceTimeout = 30 * time.Second
)

// Detection is a single detected face returned by the analysis backend.
type Detection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// detectResponse is the backend's face endpoint payload.
type detectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
	Model      string      `json:"model"`
}

// Client talks to the face-analysis backend over HTTP. It is safe for
// concurrent use and should be constructed once per process.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a face-analysis client. A zero timeout falls back to 30s,
// which bounds the single blocking network call in the attendance flow.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	if timeout <= 0 {
		timeout = defaultServiceTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit Content-Type
// based on magic byte detection so the backend never has to sniff.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face service error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces uploads an image and returns the detected faces with their
// embeddings. An empty result is not an error; callers decide what an absent
// face means.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse face response: %w", err)
	}
	return resp.Faces, nil
}

// EmbedSingleFace returns the embedding of the exactly-one face in the
// image. imageName tags NoFaceError so the caller knows which input failed.
func (c *Client) EmbedSingleFace(ctx context.Context, imageName string, imageData []byte) ([]float32, error) {
	return c.singleFaceEmbedding(ctx, imageName, imageData)
}

// singleFaceEmbedding returns the embedding of the exactly-one face in the
// image, mapping zero or multiple faces to a NoFaceError naming the image.
func (c *Client) singleFaceEmbedding(ctx context.Context, imageName string, imageData []byte) ([]float32, error) {
	faces, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	switch {
	case len(faces) == 0:
		return nil, &NoFaceError{Image: imageName, Reason: "none"}
	case len(faces) > 1:
		return nil, &NoFaceError{Image: imageName, Reason: "multiple"}
	}
	if len(faces[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return faces[0].Embedding, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
