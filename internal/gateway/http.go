package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/intake"
	"harvesttutor/internal/models"
)

const defaultHTTPTimeout = 90 * time.Second

// HTTP talks to a relay exposing /predict, /explain and /voice.
type HTTP struct {
	client *resty.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTP{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

func (h *HTTP) Classify(ctx context.Context, image *models.UploadedImage, crop string) models.ClassificationResult {
	if image == nil || len(image.Data) == 0 {
		return models.ClassificationResult{Error: "Missing image or crop"}
	}
	var out PredictResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(PredictRequest{Image: intake.Preview(image), Crop: crop}).
		SetResult(&out).
		SetError(&out).
		Post("/predict")
	if msg := failure(resp, err, out.Success, out.Error, out.Detail); msg != "" {
		log.WithField("crop", crop).Printf("relay predict failed: %s", msg)
		return models.ClassificationResult{Error: msg}
	}
	return checkClassification(models.ClassificationResult{
		Success:    true,
		Disease:    out.Disease,
		Confidence: out.Confidence,
	})
}

func (h *HTTP) Explain(ctx context.Context, crop, disease, language string) models.ExplanationResult {
	var out ExplainResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(ExplainRequest{Crop: crop, Disease: disease, Language: language}).
		SetResult(&out).
		SetError(&out).
		Post("/explain")
	if msg := failure(resp, err, out.Success, out.Error, out.Detail); msg != "" {
		log.WithFields(log.Fields{"crop": crop, "disease": disease}).Printf("relay explain failed: %s", msg)
		return models.ExplanationResult{Error: msg}
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return models.ExplanationResult{Error: ExplainFailedPrefix + "empty response"}
	}
	return models.ExplanationResult{Success: true, Explanation: out.Explanation}
}

func (h *HTTP) SynthesizeVoice(ctx context.Context, text, language string) models.VoiceResult {
	var out VoiceResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(VoiceRequest{Text: text, Language: language}).
		SetResult(&out).
		SetError(&out).
		Post("/voice")
	if msg := failure(resp, err, out.Success, out.Error, out.Detail); msg != "" {
		log.WithField("language", language).Printf("relay voice failed: %s", msg)
		return models.VoiceResult{Error: msg}
	}
	if out.AudioBase64 == "" {
		return models.VoiceResult{Error: VoiceFailedPrefix + "empty audio"}
	}
	return models.VoiceResult{Success: true, AudioBase64: out.AudioBase64}
}

// failure returns the user-facing message for a failed relay call, or "" on success.
func failure(resp *resty.Response, err error, success bool, errMsg, detail string) string {
	if err != nil {
		return fmt.Sprintf("Network error: %v", err)
	}
	if resp.IsError() || !success {
		msg := firstNonEmpty(errMsg, detail)
		if msg == "" {
			msg = fmt.Sprintf("relay returned %s", resp.Status())
		}
		return msg
	}
	return ""
}
