// Package diagnosis sequences one analysis cycle: classify, then explain, then synthesize voice.
//
// Classification failure ends the cycle in the error state. Explanation and voice failures are
// degraded: the cycle substitutes FallbackExplanation or leaves the audio empty and still completes.
package diagnosis

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/models"
)

const (
	// FallbackExplanation replaces the explanation when the language service fails.
	FallbackExplanation = "Explanation is currently unavailable. Please consult your local agricultural extension officer for treatment advice."

	// DefaultClassifyError is shown when classification fails without a message.
	DefaultClassifyError = "Unable to identify the disease. Please try another photo."
)

// ErrNoImage is returned when a cycle is started without an uploaded image.
var ErrNoImage = errors.New("please select an image first")

// Gateway is the set of remote calls a cycle depends on. Implementations report
// every failure through the result's Success flag instead of returning errors.
type Gateway interface {
	Classify(ctx context.Context, image *models.UploadedImage, crop string) models.ClassificationResult
	Explain(ctx context.Context, crop, disease, language string) models.ExplanationResult
	SynthesizeVoice(ctx context.Context, text, language string) models.VoiceResult
}

// Observer receives the snapshot after every transition, before the next remote call starts.
type Observer func(models.Snapshot)

type Orchestrator struct {
	gateway Gateway
}

func New(gateway Gateway) *Orchestrator {
	return &Orchestrator{gateway: gateway}
}

// Run executes one full cycle for req and returns the terminal snapshot.
// The only error is ErrNoImage, in which case the returned snapshot is idle.
func (o *Orchestrator) Run(ctx context.Context, req models.DiagnosisRequest, observe Observer) (models.Snapshot, error) {
	snap := models.NewSnapshot(req)
	if req.Image == nil || len(req.Image.Data) == 0 {
		return snap, ErrNoImage
	}
	emit := func(state models.AnalysisState) {
		snap.State = state
		if observe != nil {
			observe(snap.Clone())
		}
	}
	logger := log.WithFields(log.Fields{"crop": req.Crop, "language": req.Language})

	emit(models.StatePredicting)
	classification := o.gateway.Classify(ctx, req.Image, req.Crop)
	disease := strings.TrimSpace(classification.Disease)
	if !classification.Success || disease == "" {
		msg := strings.TrimSpace(classification.Error)
		if msg == "" {
			msg = DefaultClassifyError
		}
		snap.Error = msg
		logger.Printf("classification failed: %s", msg)
		emit(models.StateError)
		return snap, nil
	}
	classification.Disease = disease
	snap.Classification = &classification

	emit(models.StateExplaining)
	explanation := o.gateway.Explain(ctx, req.Crop, disease, req.Language)
	if !explanation.Success || strings.TrimSpace(explanation.Explanation) == "" {
		logger.Printf("explanation degraded: %s", explanation.Error)
		explanation = models.ExplanationResult{
			Success:     false,
			Explanation: FallbackExplanation,
			Error:       explanation.Error,
		}
	}
	snap.Explanation = &explanation

	emit(models.StateGeneratingVoice)
	voice := o.gateway.SynthesizeVoice(ctx, explanation.Explanation, req.Language)
	if !voice.Success {
		logger.Printf("voice degraded: %s", voice.Error)
		voice.AudioBase64 = ""
	}
	snap.Voice = &voice

	emit(models.StateComplete)
	return snap, nil
}
