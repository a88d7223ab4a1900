package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/omri0111-web/facepace-public/internal/imageio"
)

const (
	defaultServerURL = "http://localhost:8000"
	// uploadJPEGQuality keeps detector input close to the decoded original.
	uploadJPEGQuality = 95
)

// Client calls an InsightFace-style model server over HTTP.
type Client struct {
	baseURL string
	client  *http.Client

	mu   sync.RWMutex
	opts InitOptions
}

// NewClient creates a new model server client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// faceDetection represents a single detected face in the server response
type faceDetection struct {
	FaceIndex int          `json:"face_index"`
	Dim       int          `json:"dim"`
	Embedding []float32    `json:"embedding"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64      `json:"det_score"`
	Kps       [][2]float64 `json:"kps"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Prepare checks that the model server answers and remembers the detector settings.
func (c *Client) Prepare(ctx context.Context, opts InitOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server not healthy (status %d): %s", resp.StatusCode, string(body))
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err == nil && health.Model != "" && opts.ModelPack != "" &&
		!strings.EqualFold(health.Model, opts.ModelPack) {
		return fmt.Errorf("model server runs %q, want %q", health.Model, opts.ModelPack)
	}

	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	return nil
}

// postMultipartImage posts the image as a multipart "file" part plus extra form fields.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
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
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectAndEmbed sends the image to /embed/face and returns faces in server order.
func (c *Client) DetectAndEmbed(ctx context.Context, img image.Image) ([]Face, error) {
	data, err := imageio.EncodeJPEG(img, uploadJPEGQuality)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()

	fields := map[string]string{}
	if opts.DetWidth > 0 && opts.DetHeight > 0 {
		fields["det_width"] = strconv.Itoa(opts.DetWidth)
		fields["det_height"] = strconv.Itoa(opts.DetHeight)
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", data, fields)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]Face, 0, len(faceResp.Faces))
	for i := range faceResp.Faces {
		d := &faceResp.Faces[i]
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("face %d: bbox has %d values, want 4", d.FaceIndex, len(d.BBox))
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", d.FaceIndex)
		}
		f := Face{
			BBox:      [4]float64{d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]},
			Embedding: d.Embedding,
			DetScore:  d.DetScore,
		}
		for _, kp := range d.Kps {
			f.Landmarks = append(f.Landmarks, facematch.Point{X: kp[0], Y: kp[1]})
		}
		faces = append(faces, f)
	}
	return faces, nil
}
