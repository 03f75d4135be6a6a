package classify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/config"
)

// Input geometry of the crop models.
const (
	InputSize = 224

	defaultTimeout = 30 * time.Second
)

var (
	ErrUnknownCrop  = errors.New("unknown crop")
	ErrInvalidImage = errors.New("invalid image data")
	ErrNoPrediction = errors.New("model returned no prediction")

	ErrLabelsUnavailable = errors.New("labels not found")
)

// Prediction is the top-scoring label of one classification.
type Prediction struct {
	Disease    string
	Confidence float64
}

// Client classifies leaf photos against per-crop models hosted behind a
// TensorFlow Serving REST endpoint.
type Client struct {
	http   *resty.Client
	models map[string]config.ClassifierModel

	mu     sync.Mutex
	labels map[string][]string
}

type predictRequest struct {
	Instances [][][][3]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

func New(cfg config.ClassifierConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	models := make(map[string]config.ClassifierModel, len(cfg.Models))
	for crop, m := range cfg.Models {
		models[crop] = m
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		models: models,
		labels: make(map[string][]string),
	}
}

// Crops lists crops that have a model configured.
func (c *Client) Crops() []string {
	crops := make([]string, 0, len(c.models))
	for crop := range c.models {
		crops = append(crops, crop)
	}
	sort.Strings(crops)
	return crops
}

// Predict runs the crop model on the encoded image and returns its best label.
func (c *Client) Predict(ctx context.Context, crop string, data []byte) (Prediction, error) {
	m, ok := c.models[crop]
	if !ok {
		return Prediction{}, fmt.Errorf("%w: %s", ErrUnknownCrop, crop)
	}
	labels, err := c.loadLabels(crop, m.LabelsPath)
	if err != nil {
		return Prediction{}, err
	}
	input, err := Preprocess(data)
	if err != nil {
		return Prediction{}, err
	}

	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(predictRequest{Instances: [][][][3]float32{input}}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v1/models/%s:predict", m.Name))
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier request: %w", err)
	}
	if resp.IsError() {
		msg := out.Error
		if msg == "" {
			msg = resp.Status()
		}
		return Prediction{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode(), msg)
	}
	if len(out.Predictions) == 0 {
		return Prediction{}, ErrNoPrediction
	}

	idx, score := argmax(out.Predictions[0])
	if idx < 0 {
		return Prediction{}, ErrNoPrediction
	}
	if idx >= len(labels) {
		return Prediction{}, fmt.Errorf("prediction index %d outside %d labels for %s", idx, len(labels), crop)
	}
	log.WithFields(log.Fields{"crop": crop, "disease": labels[idx]}).Debugf("classified with score %.3f", score)
	return Prediction{Disease: labels[idx], Confidence: score}, nil
}

// Preprocess decodes an image, converts it to RGB at InputSize×InputSize and
// scales every channel into [-1, 1].
func Preprocess(data []byte) ([][][3]float32, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	img = imaging.Resize(img, InputSize, InputSize, imaging.Lanczos)
	return tensorFromImage(img), nil
}

func tensorFromImage(img image.Image) [][][3]float32 {
	b := img.Bounds()
	out := make([][][3]float32, InputSize)
	for y := 0; y < InputSize; y++ {
		row := make([][3]float32, InputSize)
		for x := 0; x < InputSize; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x] = [3]float32{
				float32(r>>8)/127.5 - 1,
				float32(g>>8)/127.5 - 1,
				float32(bl>>8)/127.5 - 1,
			}
		}
		out[y] = row
	}
	return out
}

func argmax(scores []float64) (int, float64) {
	best, bestScore := -1, 0.0
	for i, s := range scores {
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

func (c *Client) loadLabels(crop, path string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if labels, ok := c.labels[crop]; ok {
		return labels, nil
	}
	labels, err := readLabels(path)
	if err != nil {
		return nil, fmt.Errorf("%w for crop %s: %w", ErrLabelsUnavailable, crop, err)
	}
	c.labels[crop] = labels
	return labels, nil
}

// readLabels reads one label per line. Lines exported as "<index> <name>"
// keep only the name.
func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, stripIndex(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("labels file is empty")
	}
	return labels, nil
}

func stripIndex(line string) string {
	head, rest, ok := strings.Cut(line, " ")
	if !ok {
		return line
	}
	if _, err := strconv.Atoi(head); err != nil {
		return line
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return line
	}
	return rest
}
