package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/warmcold/pkg/nn"
)

const (
	EncodingJPEG   = "jpeg"   // Body is a JPEG of the model input image
	EncodingTensor = "tensor" // Body is little endian float32 HWC RGB, scaled to [0,1]
)

// JPEG quality of frames sent to a remote engine
const remoteJPEGQuality = 90

// Remote posts each model input image to an HTTP inference server.
// The server responds with RemoteResponse JSON.
type Remote struct {
	config   *nn.ModelConfig
	url      string
	encoding string
	threads  int
	delegate string
	client   *http.Client
}

// RemoteResponse is the body that an inference server returns
type RemoteResponse struct {
	Objects     []nn.RawDetection `json:"objects"`
	InferenceMS float64           `json:"inferenceMS"` // Time spent inside the model, as measured by the server
}

func NewRemote(config *nn.ModelConfig, setup *nn.ModelSetup) (*Remote, error) {
	if setup.URL == "" {
		return nil, fmt.Errorf("Remote engine needs a URL")
	}
	encoding := setup.Encoding
	if encoding == "" {
		encoding = EncodingJPEG
	}
	if encoding != EncodingJPEG && encoding != EncodingTensor {
		return nil, fmt.Errorf("Unknown remote encoding '%v'", encoding)
	}
	delegate := "cpu"
	if setup.UseAcceleration {
		delegate = "gpu"
	}
	return &Remote{
		config:   config,
		url:      setup.URL,
		encoding: encoding,
		threads:  setup.NumThreads,
		delegate: delegate,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (r *Remote) Close() {
	r.client.CloseIdleConnections()
}

func (r *Remote) Config() *nn.ModelConfig {
	return r.config
}

func (r *Remote) encode(img *image.NRGBA) (body []byte, contentType string, err error) {
	switch r.encoding {
	case EncodingTensor:
		tensor := nn.ImageToTensor(img)
		buf := bytes.Buffer{}
		buf.Grow(len(tensor) * 4)
		if err := binary.Write(&buf, binary.LittleEndian, tensor); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "application/octet-stream", nil
	default:
		b, err := EncodeJPEG(img, remoteJPEGQuality)
		return b, "image/jpeg", err
	}
}

func (r *Remote) Detect(img *image.NRGBA) ([]nn.RawDetection, *nn.EngineStats, error) {
	stats := &nn.EngineStats{}
	start := time.Now()
	body, contentType, err := r.encode(img)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to encode image: %w", err)
	}
	stats.Preprocess = time.Since(start)

	req, err := http.NewRequest("POST", r.url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Image-Width", strconv.Itoa(img.Rect.Dx()))
	req.Header.Set("X-Image-Height", strconv.Itoa(img.Rect.Dy()))
	req.Header.Set("X-Threads", strconv.Itoa(r.threads))
	req.Header.Set("X-Delegate", r.delegate)

	start = time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("Inference server error %v: %v", resp.Status, string(respBody))
	}
	result := RemoteResponse{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, nil, fmt.Errorf("Invalid inference server response: %w", err)
	}
	if result.InferenceMS > 0 {
		stats.Inference = time.Duration(result.InferenceMS * float64(time.Millisecond))
	} else {
		stats.Inference = time.Since(start)
	}
	return result.Objects, stats, nil
}
