package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/gateway"
	"harvesttutor/internal/models"
	"harvesttutor/internal/service/classify"
	"harvesttutor/internal/service/explain"
)

// base64 of a 10 MiB image plus JSON framing
const maxRelayBody = 16 << 20

// Relay exposes the classifier, explainer and speech services over the plain JSON
// routes the HTTP gateway consumes.
type Relay struct {
	classifier  gateway.Classifier
	explainer   gateway.Explainer
	synthesizer gateway.Synthesizer
	catalog     *models.Catalog
	models      []string
}

// NewRelay builds the relay. available lists the crops with a loaded model.
func NewRelay(classifier gateway.Classifier, explainer gateway.Explainer, synthesizer gateway.Synthesizer, catalog *models.Catalog, available []string) *Relay {
	if catalog == nil {
		catalog = models.NewCatalog(nil)
	}
	return &Relay{
		classifier:  classifier,
		explainer:   explainer,
		synthesizer: synthesizer,
		catalog:     catalog,
		models:      append([]string{}, available...),
	}
}

// RegisterRoutes attaches the relay routes at the router root, guarded by mw.
func (r *Relay) RegisterRoutes(router *gin.Engine, mw ...gin.HandlerFunc) {
	relay := router.Group("/")
	relay.Use(RelayRecovery())
	relay.Use(mw...)
	relay.GET("/", r.status)
	relay.POST("/predict", r.predict)
	relay.POST("/explain", r.explain)
	relay.POST("/voice", r.voice)
}

func (r *Relay) status(c *gin.Context) {
	c.JSON(http.StatusOK, gateway.StatusResponse{
		Status:          "online",
		Message:         "Harvest Tutor Backend Running",
		ModelsAvailable: r.models,
	})
}

func (r *Relay) predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRelayBody)
	var req gateway.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gateway.PredictResponse{Detail: "invalid request body"})
		return
	}
	if req.Image == "" || req.Crop == "" {
		c.JSON(http.StatusBadRequest, gateway.PredictResponse{Detail: "Missing image or crop"})
		return
	}
	data, err := decodeImage(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gateway.PredictResponse{Detail: fmt.Sprintf("Invalid image data: %v", err)})
		return
	}

	pred, err := r.classifier.Predict(c.Request.Context(), req.Crop, data)
	switch {
	case err == nil:
	case errors.Is(err, classify.ErrUnknownCrop):
		c.JSON(http.StatusBadRequest, gateway.PredictResponse{Detail: fmt.Sprintf("Model not found for crop: %s", req.Crop)})
		return
	case errors.Is(err, classify.ErrLabelsUnavailable):
		c.JSON(http.StatusBadRequest, gateway.PredictResponse{Detail: fmt.Sprintf("Labels not found for crop: %s", req.Crop)})
		return
	case errors.Is(err, classify.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gateway.PredictResponse{Detail: err.Error()})
		return
	default:
		log.WithField("crop", req.Crop).Printf("prediction error: %v", err)
		c.JSON(http.StatusInternalServerError, gateway.PredictResponse{Error: gateway.PredictFailedPrefix + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gateway.PredictResponse{
		Success:    true,
		Disease:    pred.Disease,
		Confidence: pred.Confidence,
		Crop:       req.Crop,
	})
}

// decodeImage accepts raw base64 or a data URI.
func decodeImage(s string) ([]byte, error) {
	if _, payload, ok := strings.Cut(s, "base64,"); ok {
		s = payload
	}
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

func (r *Relay) explain(c *gin.Context) {
	var req gateway.ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gateway.ExplainResponse{Detail: "invalid request body"})
		return
	}
	if req.Crop == "" || req.Disease == "" {
		c.JSON(http.StatusBadRequest, gateway.ExplainResponse{Detail: "Missing crop or disease"})
		return
	}
	if req.Language == "" {
		req.Language = models.DefaultLanguage
	}

	text, err := r.explainer.Explain(c.Request.Context(), req.Crop, req.Disease, req.Language)
	if err != nil {
		log.WithFields(log.Fields{"crop": req.Crop, "disease": req.Disease}).Printf("explain error: %v", err)
		msg := gateway.ExplainFailedPrefix + err.Error()
		if errors.Is(err, explain.ErrNotConfigured) {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gateway.ExplainResponse{Error: msg})
		return
	}
	c.JSON(http.StatusOK, gateway.ExplainResponse{
		Success:     true,
		Explanation: text,
		Crop:        req.Crop,
		Disease:     req.Disease,
		Language:    req.Language,
	})
}

func (r *Relay) voice(c *gin.Context) {
	var req gateway.VoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gateway.VoiceResponse{Detail: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gateway.VoiceResponse{Detail: "No text provided"})
		return
	}
	code := r.catalog.LanguageCode(req.Language)

	audio, err := r.synthesizer.Synthesize(c.Request.Context(), req.Text, code)
	if err != nil {
		log.WithField("language", req.Language).Printf("voice error: %v", err)
		c.JSON(http.StatusInternalServerError, gateway.VoiceResponse{Error: gateway.VoiceFailedPrefix + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gateway.VoiceResponse{
		Success:      true,
		AudioBase64:  base64.StdEncoding.EncodeToString(audio),
		Language:     req.Language,
		LanguageCode: code,
	})
}
