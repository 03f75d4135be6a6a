package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/diagnosis"
	"harvesttutor/internal/intake"
	"harvesttutor/internal/models"
	"harvesttutor/internal/presentation"
	"harvesttutor/internal/worker"
)

// multipart framing allowance on top of the image itself
const uploadOverhead = 1 << 20

type SessionManager interface {
	Create(crop, language string) (string, models.Snapshot, error)
	Snapshot(id string) (models.Snapshot, error)
	Select(id, crop, language string) (models.Snapshot, error)
	SetImage(id string, img *models.UploadedImage) (models.Snapshot, error)
	ClearImage(id string) (models.Snapshot, error)
	Analyze(ctx context.Context, id string, observe func(models.Snapshot)) (models.Snapshot, error)
	Delete(id string) error
}

// Handler serves the diagnosis API on top of the session manager.
type Handler struct {
	sessions SessionManager
	catalog  *models.Catalog
}

func NewHandler(sessions SessionManager, catalog *models.Catalog) *Handler {
	if catalog == nil {
		catalog = models.NewCatalog(nil)
	}
	return &Handler{sessions: sessions, catalog: catalog}
}

// RegisterRoutes attaches the diagnosis routes under /api.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/catalog", h.getCatalog)
	api.POST("/sessions", h.createSession)
	sessions := api.Group("/sessions/:id")
	sessions.GET("", h.getSession)
	sessions.DELETE("", h.deleteSession)
	sessions.PUT("/selection", h.updateSelection)
	sessions.POST("/image", h.uploadImage)
	sessions.DELETE("/image", h.clearImage)
	sessions.POST("/analyze", h.analyze)
}

type selectionRequest struct {
	Crop     string `json:"crop"`
	Language string `json:"language"`
}

func sessionPayload(id string, snap models.Snapshot) gin.H {
	return gin.H{
		"id":       id,
		"crop":     snap.Crop,
		"language": snap.Language,
		"view":     presentation.Render(snap),
	}
}

func (h *Handler) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"crops":     h.catalog.CropList(),
		"languages": h.catalog.LanguageList(),
	})
}

func (h *Handler) createSession(c *gin.Context) {
	var req selectionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	id, snap, err := h.sessions.Create(req.Crop, req.Language)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionPayload(id, snap))
}

func (h *Handler) getSession(c *gin.Context) {
	id := c.Param("id")
	snap, err := h.sessions.Snapshot(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionPayload(id, snap))
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateSelection(c *gin.Context) {
	id := c.Param("id")
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	snap, err := h.sessions.Select(id, req.Crop, req.Language)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionPayload(id, snap))
}

func (h *Handler) uploadImage(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sessions.Snapshot(id); err != nil {
		writeError(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, intake.MaxImageBytes+uploadOverhead)
	if err := c.Request.ParseMultipartForm(intake.MaxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, intake.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		writeError(c, intake.ErrNoImage)
		return
	}
	if err := intake.CheckSize(file.Size); err != nil {
		writeError(c, err)
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	img, err := intake.Accept(file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(c, err)
		return
	}
	snap, err := h.sessions.SetImage(id, img)
	if err != nil {
		writeError(c, err)
		return
	}
	payload := sessionPayload(id, snap)
	payload["preview"] = intake.Preview(img)
	c.JSON(http.StatusCreated, payload)
}

func (h *Handler) clearImage(c *gin.Context) {
	if _, err := h.sessions.ClearImage(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) analyze(c *gin.Context) {
	id := c.Param("id")
	if !wantsEventStream(c.Request) {
		snap, err := h.sessions.Analyze(c.Request.Context(), id, nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionPayload(id, snap))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	started := false
	sendEvent := func(event string, payload interface{}) error {
		if !started {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.Header().Set("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// headers are only committed once the first state arrives, so a rejected
	// request still gets a plain JSON status
	final, err := h.sessions.Analyze(c.Request.Context(), id, func(snap models.Snapshot) {
		if err := sendEvent("state", sessionPayload(id, snap)); err != nil {
			log.WithField("session", id).Debugf("send state event: %v", err)
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if !started {
			writeError(c, err)
			return
		}
		_ = sendEvent("error", gin.H{"message": err.Error()})
		return
	}
	_ = sendEvent("done", sessionPayload(id, final))
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, worker.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, worker.ErrAnalysisInFlight):
		status = http.StatusConflict
	case errors.Is(err, worker.ErrServerBusy):
		status = http.StatusTooManyRequests
	case errors.Is(err, intake.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, worker.ErrUnsupportedCrop),
		errors.Is(err, worker.ErrUnsupportedLanguage),
		errors.Is(err, diagnosis.ErrNoImage),
		errors.Is(err, intake.ErrNoImage),
		errors.Is(err, intake.ErrNotImage):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
