// Package gateway reaches the classifier, explainer and speech services on behalf of
// the orchestrator, either through the HTTP relay or by calling the clients in-process.
// Every failure is folded into the returned result.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"harvesttutor/internal/models"
	"harvesttutor/internal/service/classify"
)

// Classifier is satisfied by *classify.Client.
type Classifier interface {
	Predict(ctx context.Context, crop string, data []byte) (classify.Prediction, error)
}

// Explainer is satisfied by *explain.Service.
type Explainer interface {
	Explain(ctx context.Context, crop, disease, language string) (string, error)
}

// Synthesizer is satisfied by *voice.Client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, langCode string) ([]byte, error)
}

// checkClassification enforces the result invariants: a successful result names a
// disease and carries a confidence in [0, 1].
func checkClassification(res models.ClassificationResult) models.ClassificationResult {
	if !res.Success {
		res.Disease = ""
		res.Confidence = 0
		return res
	}
	res.Disease = strings.TrimSpace(res.Disease)
	switch {
	case res.Disease == "":
		return models.ClassificationResult{Error: "classifier returned no disease"}
	case math.IsNaN(res.Confidence) || res.Confidence < 0 || res.Confidence > 1:
		return models.ClassificationResult{Error: fmt.Sprintf("classifier returned invalid confidence %v", res.Confidence)}
	}
	res.Error = ""
	return res
}

func voiceSuccess(audio []byte) models.VoiceResult {
	if len(audio) == 0 {
		return models.VoiceResult{Error: VoiceFailedPrefix + "empty audio"}
	}
	return models.VoiceResult{Success: true, AudioBase64: base64.StdEncoding.EncodeToString(audio)}
}
