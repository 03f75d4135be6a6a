package gateway

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/models"
	"harvesttutor/internal/service/explain"
)

// Direct calls the upstream clients in the same process.
type Direct struct {
	classifier Classifier
	explainer  Explainer
	voice      Synthesizer
	catalog    *models.Catalog
}

func NewDirect(classifier Classifier, explainer Explainer, voice Synthesizer, catalog *models.Catalog) *Direct {
	if catalog == nil {
		catalog = models.NewCatalog(nil)
	}
	return &Direct{classifier: classifier, explainer: explainer, voice: voice, catalog: catalog}
}

func (d *Direct) Classify(ctx context.Context, image *models.UploadedImage, crop string) models.ClassificationResult {
	if image == nil || len(image.Data) == 0 {
		return models.ClassificationResult{Error: "Missing image or crop"}
	}
	pred, err := d.classifier.Predict(ctx, crop, image.Data)
	if err != nil {
		log.WithField("crop", crop).Printf("classify failed: %v", err)
		return models.ClassificationResult{Error: PredictFailedPrefix + err.Error()}
	}
	return checkClassification(models.ClassificationResult{
		Success:    true,
		Disease:    pred.Disease,
		Confidence: pred.Confidence,
	})
}

func (d *Direct) Explain(ctx context.Context, crop, disease, language string) models.ExplanationResult {
	text, err := d.explainer.Explain(ctx, crop, disease, language)
	if err != nil {
		log.WithFields(log.Fields{"crop": crop, "disease": disease}).Printf("explain failed: %v", err)
		if errors.Is(err, explain.ErrNotConfigured) {
			return models.ExplanationResult{Error: err.Error()}
		}
		return models.ExplanationResult{Error: ExplainFailedPrefix + err.Error()}
	}
	if strings.TrimSpace(text) == "" {
		return models.ExplanationResult{Error: ExplainFailedPrefix + "empty response"}
	}
	return models.ExplanationResult{Success: true, Explanation: text}
}

func (d *Direct) SynthesizeVoice(ctx context.Context, text, language string) models.VoiceResult {
	audio, err := d.voice.Synthesize(ctx, text, d.catalog.LanguageCode(language))
	if err != nil {
		log.WithField("language", language).Printf("voice failed: %v", err)
		return models.VoiceResult{Error: VoiceFailedPrefix + err.Error()}
	}
	return voiceSuccess(audio)
}
