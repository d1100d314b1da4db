package submit

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
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/pkg/task"
	"github.com/menta2k/photo-annotator/pkg/types"
)

var (
	// ErrInFlight is returned while a previous upload has not finished
	ErrInFlight = errors.New("upload already in progress")
	// ErrNoImage is returned when there is no selected file to send
	ErrNoImage = errors.New("no image selected")
)

// Upload is everything sent in one submission
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Records     []types.Record
}

// Client posts annotated images to the upload endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	inFlight   atomic.Bool
}

// NewClient creates an upload client for endpoint
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// InFlight reports whether an upload is running
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// Submit sends the file and its annotations as one multipart POST. The
// response body is logged and returned; failures are logged and returned.
func (c *Client) Submit(ctx context.Context, u Upload) (json.RawMessage, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer c.inFlight.Store(false)
	return c.send(ctx, u)
}

// SubmitAsync claims the in-flight slot immediately and sends in the
// background. A second call before the first finishes gets ErrInFlight.
func (c *Client) SubmitAsync(ctx context.Context, u Upload) (*task.Task[json.RawMessage], error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	return task.Go(ctx, func(ctx context.Context) (json.RawMessage, error) {
		defer c.inFlight.Store(false)
		return c.send(ctx, u)
	}), nil
}

func (c *Client) send(ctx context.Context, u Upload) (json.RawMessage, error) {
	if len(u.Data) == 0 {
		c.logger.Error("there was an error uploading the file", zap.Error(ErrNoImage))
		return nil, ErrNoImage
	}

	body, contentType, err := encodeBody(u)
	if err != nil {
		c.logger.Error("there was an error uploading the file", zap.Error(err))
		return nil, err
	}

	resp, err := c.post(ctx, body, contentType)
	if err != nil {
		c.logger.Error("there was an error uploading the file",
			zap.String("endpoint", c.endpoint),
			zap.String("filename", u.Filename),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("upload response",
		zap.String("filename", u.Filename),
		zap.Int("annotations", len(u.Records)),
		zap.ByteString("response", resp))
	return resp, nil
}

func (c *Client) post(ctx context.Context, body *bytes.Buffer, contentType string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send upload: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, string(data))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		quoted, _ := json.Marshal(string(data))
		return json.RawMessage(quoted), nil
	}
	return json.RawMessage(data), nil
}

// encodeBody builds the multipart payload with the "file" and
// "annotations" fields
func encodeBody(u Upload) (*bytes.Buffer, string, error) {
	records := u.Records
	if records == nil {
		records = []types.Record{}
	}
	annotations, err := json.Marshal(records)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode annotations: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := u.Filename
	if filename == "" {
		filename = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(u.Data); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField("annotations", string(annotations)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
