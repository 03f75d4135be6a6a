package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"harvesttutor/internal/models"
	"harvesttutor/internal/service/classify"
	"harvesttutor/internal/service/explain"
)

type stubClassifier struct {
	pred classify.Prediction
	err  error
}

func (s stubClassifier) Predict(context.Context, string, []byte) (classify.Prediction, error) {
	return s.pred, s.err
}

type stubExplainer struct {
	text string
	err  error
}

func (s stubExplainer) Explain(context.Context, string, string, string) (string, error) {
	return s.text, s.err
}

type stubVoice struct {
	audio   []byte
	err     error
	gotLang string
	gotText string
}

func (s *stubVoice) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	s.gotText, s.gotLang = text, lang
	return s.audio, s.err
}

func testImage() *models.UploadedImage {
	return &models.UploadedImage{Name: "leaf.png", MimeType: "image/png", Size: 3, Data: []byte{1, 2, 3}}
}

func TestCheckClassification(t *testing.T) {
	ok := checkClassification(models.ClassificationResult{Success: true, Disease: " Early Blight ", Confidence: 0.87})
	require.True(t, ok.Success)
	require.Equal(t, "Early Blight", ok.Disease)

	for _, conf := range []float64{-0.1, 1.2, math.NaN()} {
		res := checkClassification(models.ClassificationResult{Success: true, Disease: "Scab", Confidence: conf})
		require.False(t, res.Success)
		require.Empty(t, res.Disease)
		require.NotEmpty(t, res.Error)
	}

	res := checkClassification(models.ClassificationResult{Success: true, Confidence: 0.5})
	require.False(t, res.Success)

	failed := checkClassification(models.ClassificationResult{Disease: "stale", Confidence: 0.4, Error: "boom"})
	require.False(t, failed.Success)
	require.Empty(t, failed.Disease)
	require.Equal(t, "boom", failed.Error)
}

func TestDirectClassify(t *testing.T) {
	d := NewDirect(stubClassifier{pred: classify.Prediction{Disease: "Early Blight", Confidence: 0.87}}, nil, nil, nil)
	res := d.Classify(context.Background(), testImage(), "Tomato")
	require.Equal(t, models.ClassificationResult{Success: true, Disease: "Early Blight", Confidence: 0.87}, res)

	d = NewDirect(stubClassifier{err: errors.New("model unavailable")}, nil, nil, nil)
	res = d.Classify(context.Background(), testImage(), "Tomato")
	require.False(t, res.Success)
	require.Equal(t, "Prediction failed: model unavailable", res.Error)

	res = d.Classify(context.Background(), nil, "Tomato")
	require.False(t, res.Success)
}

func TestDirectExplain(t *testing.T) {
	d := NewDirect(nil, stubExplainer{text: "Remove infected leaves."}, nil, nil)
	require.Equal(t, models.ExplanationResult{Success: true, Explanation: "Remove infected leaves."},
		d.Explain(context.Background(), "Tomato", "Early Blight", "English"))

	d = NewDirect(nil, stubExplainer{err: explain.ErrNotConfigured}, nil, nil)
	res := d.Explain(context.Background(), "Tomato", "Early Blight", "English")
	require.False(t, res.Success)
	require.Equal(t, explain.ErrNotConfigured.Error(), res.Error)

	d = NewDirect(nil, stubExplainer{err: errors.New("quota")}, nil, nil)
	res = d.Explain(context.Background(), "Tomato", "Early Blight", "English")
	require.Equal(t, "Explanation unavailable: quota", res.Error)

	d = NewDirect(nil, stubExplainer{text: "   "}, nil, nil)
	require.False(t, d.Explain(context.Background(), "Tomato", "Early Blight", "English").Success)
}

func TestDirectVoiceUsesLanguageCode(t *testing.T) {
	v := &stubVoice{audio: []byte("mp3")}
	d := NewDirect(nil, nil, v, models.NewCatalog(nil))

	res := d.SynthesizeVoice(context.Background(), "hello", "Hindi")
	require.True(t, res.Success)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3")), res.AudioBase64)
	require.Equal(t, "hi", v.gotLang)

	d.SynthesizeVoice(context.Background(), "hello", "Klingon")
	require.Equal(t, "en", v.gotLang)

	v.err = errors.New("429")
	res = d.SynthesizeVoice(context.Background(), "hello", "English")
	require.False(t, res.Success)
	require.Empty(t, res.AudioBase64)
	require.Equal(t, "Voice generation failed: 429", res.Error)
}

func newRelay(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *HTTP {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return NewHTTP(srv.URL+"/", 0)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPClassify(t *testing.T) {
	var got PredictRequest
	h := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, PredictResponse{Success: true, Disease: "Early Blight", Confidence: 0.87, Crop: "Tomato"})
	})
	res := h.Classify(context.Background(), testImage(), "Tomato")
	require.True(t, res.Success)
	require.Equal(t, "Early Blight", res.Disease)
	require.Equal(t, "Tomato", got.Crop)
	require.True(t, strings.HasPrefix(got.Image, "data:image/png;base64,"))
}

func TestHTTPClassifyFailures(t *testing.T) {
	h := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, PredictResponse{Detail: "Labels not found for crop: Rice"})
	})
	res := h.Classify(context.Background(), testImage(), "Rice")
	require.False(t, res.Success)
	require.Equal(t, "Labels not found for crop: Rice", res.Error)

	h = newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, PredictResponse{Error: "Prediction failed: model unavailable"})
	})
	res = h.Classify(context.Background(), testImage(), "Tomato")
	require.Equal(t, "Prediction failed: model unavailable", res.Error)

	h = newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, PredictResponse{Success: true, Disease: "Scab", Confidence: 3})
	})
	res = h.Classify(context.Background(), testImage(), "Apple")
	require.False(t, res.Success)
	require.Empty(t, res.Disease)

	h = newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	res = h.Classify(context.Background(), testImage(), "Apple")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "502")
}

func TestHTTPClassifyNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewHTTP(url, 0).Classify(context.Background(), testImage(), "Tomato")
	require.False(t, res.Success)
	require.True(t, strings.HasPrefix(res.Error, "Network error"))
}

func TestHTTPExplainAndVoice(t *testing.T) {
	h := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/explain":
			var req ExplainRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			writeJSON(w, http.StatusOK, ExplainResponse{Success: true, Explanation: "About " + req.Disease})
		case "/voice":
			var req VoiceRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			writeJSON(w, http.StatusOK, VoiceResponse{Success: true, AudioBase64: "QUJD", Language: req.Language, LanguageCode: "hi"})
		}
	})
	exp := h.Explain(context.Background(), "Tomato", "Early Blight", "Hindi")
	require.Equal(t, models.ExplanationResult{Success: true, Explanation: "About Early Blight"}, exp)

	v := h.SynthesizeVoice(context.Background(), exp.Explanation, "Hindi")
	require.Equal(t, models.VoiceResult{Success: true, AudioBase64: "QUJD"}, v)
}

func TestHTTPExplainFailure(t *testing.T) {
	h := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ExplainResponse{Error: "Explanation unavailable: quota"})
	})
	res := h.Explain(context.Background(), "Tomato", "Early Blight", "English")
	require.False(t, res.Success)
	require.Equal(t, "Explanation unavailable: quota", res.Error)
}
