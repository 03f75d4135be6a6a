package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"harvesttutor/internal/gateway"
	"harvesttutor/internal/models"
	"harvesttutor/internal/service/classify"
	"harvesttutor/internal/service/explain"
)

type stubClassifier struct {
	pred    classify.Prediction
	err     error
	gotCrop string
	gotData []byte
}

func (s *stubClassifier) Predict(_ context.Context, crop string, data []byte) (classify.Prediction, error) {
	s.gotCrop, s.gotData = crop, data
	return s.pred, s.err
}

type stubExplainer struct {
	text string
	err  error
}

func (s stubExplainer) Explain(context.Context, string, string, string) (string, error) {
	return s.text, s.err
}

type stubSynth struct {
	audio   []byte
	err     error
	gotLang string
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, lang string) ([]byte, error) {
	s.gotLang = lang
	return s.audio, s.err
}

type panicClassifier struct{}

func (panicClassifier) Predict(context.Context, string, []byte) (classify.Prediction, error) {
	panic("tensor shape mismatch")
}

func newRelayServer(cl gateway.Classifier, ex gateway.Explainer, sy gateway.Synthesizer, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewRelay(cl, ex, sy, models.NewCatalog(nil), []string{"Apple", "Potato", "Tomato"}).RegisterRoutes(router, mw...)
	return router
}

func TestRelayStatus(t *testing.T) {
	router := newRelayServer(&stubClassifier{}, stubExplainer{}, &stubSynth{})
	rec := doJSONRequest(t, router, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body gateway.StatusResponse
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, "online", body.Status)
	require.Equal(t, []string{"Apple", "Potato", "Tomato"}, body.ModelsAvailable)
}

func TestRelayPredict(t *testing.T) {
	cl := &stubClassifier{pred: classify.Prediction{Disease: "Early Blight", Confidence: 0.87}}
	router := newRelayServer(cl, stubExplainer{}, &stubSynth{})

	img := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}
	rec := doJSONRequest(t, router, http.MethodPost, "/predict", gateway.PredictRequest{
		Image: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
		Crop:  "Tomato",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body gateway.PredictResponse
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, gateway.PredictResponse{Success: true, Disease: "Early Blight", Confidence: 0.87, Crop: "Tomato"}, body)
	require.Equal(t, img, cl.gotData)

	rec = doJSONRequest(t, router, http.MethodPost, "/predict", gateway.PredictRequest{
		Image: base64.StdEncoding.EncodeToString(img),
		Crop:  "Tomato",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRelayPredictFailures(t *testing.T) {
	cases := []struct {
		name   string
		req    gateway.PredictRequest
		err    error
		status int
		detail string
		errMsg string
	}{
		{name: "missing crop", req: gateway.PredictRequest{Image: "QUJD"}, status: http.StatusBadRequest, detail: "Missing image or crop"},
		{name: "bad base64", req: gateway.PredictRequest{Image: "%%%", Crop: "Tomato"}, status: http.StatusBadRequest},
		{name: "unknown crop", req: gateway.PredictRequest{Image: "QUJD", Crop: "Rice"}, err: fmt.Errorf("%w: Rice", classify.ErrUnknownCrop), status: http.StatusBadRequest, detail: "Model not found for crop: Rice"},
		{name: "labels", req: gateway.PredictRequest{Image: "QUJD", Crop: "Apple"}, err: classify.ErrLabelsUnavailable, status: http.StatusBadRequest, detail: "Labels not found for crop: Apple"},
		{name: "upstream", req: gateway.PredictRequest{Image: "QUJD", Crop: "Apple"}, err: errors.New("model unavailable"), status: http.StatusInternalServerError, errMsg: "Prediction failed: model unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRelayServer(&stubClassifier{err: tc.err}, stubExplainer{}, &stubSynth{})
			rec := doJSONRequest(t, router, http.MethodPost, "/predict", tc.req, nil)
			require.Equal(t, tc.status, rec.Code)
			var body gateway.PredictResponse
			decodeJSON(t, rec.Body.Bytes(), &body)
			require.False(t, body.Success)
			if tc.detail != "" {
				require.Equal(t, tc.detail, body.Detail)
			}
			if tc.errMsg != "" {
				require.Equal(t, tc.errMsg, body.Error)
			}
		})
	}
}

func TestRelayExplain(t *testing.T) {
	router := newRelayServer(&stubClassifier{}, stubExplainer{text: "Spray copper."}, &stubSynth{})
	rec := doJSONRequest(t, router, http.MethodPost, "/explain", gateway.ExplainRequest{Crop: "Tomato", Disease: "Early Blight"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body gateway.ExplainResponse
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.True(t, body.Success)
	require.Equal(t, "Spray copper.", body.Explanation)
	require.Equal(t, "English", body.Language)

	router = newRelayServer(&stubClassifier{}, stubExplainer{err: explain.ErrNotConfigured}, &stubSynth{})
	rec = doJSONRequest(t, router, http.MethodPost, "/explain", gateway.ExplainRequest{Crop: "Tomato", Disease: "Early Blight", Language: "Hindi"}, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, explain.ErrNotConfigured.Error(), body.Error)

	router = newRelayServer(&stubClassifier{}, stubExplainer{err: errors.New("quota exceeded")}, &stubSynth{})
	rec = doJSONRequest(t, router, http.MethodPost, "/explain", gateway.ExplainRequest{Crop: "Tomato", Disease: "Early Blight"}, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, "Explanation unavailable: quota exceeded", body.Error)
}

func TestRelayVoice(t *testing.T) {
	sy := &stubSynth{audio: []byte("ID3")}
	router := newRelayServer(&stubClassifier{}, stubExplainer{}, sy)

	rec := doJSONRequest(t, router, http.MethodPost, "/voice", gateway.VoiceRequest{Text: "hello", Language: "Tamil"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body gateway.VoiceResponse
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, gateway.VoiceResponse{Success: true, AudioBase64: "SUQz", Language: "Tamil", LanguageCode: "ta"}, body)

	rec = doJSONRequest(t, router, http.MethodPost, "/voice", gateway.VoiceRequest{Text: "hello", Language: "Esperanto"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "en", sy.gotLang)

	rec = doJSONRequest(t, router, http.MethodPost, "/voice", gateway.VoiceRequest{Text: "  "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	sy.err = errors.New("429 from upstream")
	rec = doJSONRequest(t, router, http.MethodPost, "/voice", gateway.VoiceRequest{Text: "hello"}, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, "Voice generation failed: 429 from upstream", body.Error)
}

func TestRelayRecoversPanics(t *testing.T) {
	router := newRelayServer(panicClassifier{}, stubExplainer{}, &stubSynth{})
	rec := doJSONRequest(t, router, http.MethodPost, "/predict", gateway.PredictRequest{Image: "QUJD", Crop: "Tomato"}, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body gateway.PredictResponse
	decodeJSON(t, rec.Body.Bytes(), &body)
	require.Equal(t, "Internal Server Error: tensor shape mismatch", body.Error)
}

func TestRelayRateLimit(t *testing.T) {
	router := newRelayServer(&stubClassifier{}, stubExplainer{}, &stubSynth{}, RateLimit(2, time.Minute))
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, doJSONRequest(t, router, http.MethodGet, "/", nil, nil).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, doJSONRequest(t, router, http.MethodGet, "/", nil, nil).Code)
}

func TestRateLimiterWindow(t *testing.T) {
	l := newRateLimiter(1, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	now = now.Add(61 * time.Second)
	require.True(t, l.Allow("a"))
}

func TestDecodeImage(t *testing.T) {
	data, err := decodeImage("data:image/png;base64,QUJD")
	require.NoError(t, err)
	require.Equal(t, []byte("ABC"), data)

	data, err = decodeImage("QUI")
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), data)

	_, err = decodeImage("")
	require.Error(t, err)
}

func TestRelayRoutesHaveNoCORSWithoutOrigin(t *testing.T) {
	router := newRelayServer(&stubClassifier{}, stubExplainer{}, &stubSynth{}, CORS([]string{"https://farm.example"}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://farm.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "https://farm.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
