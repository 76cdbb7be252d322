package handler

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/totalityengine/api/internal/model"
	"github.com/totalityengine/api/internal/service"
	"github.com/totalityengine/api/internal/store"
	"github.com/totalityengine/api/pkg/response"
)

var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
}

type AnalysisHandler struct {
	service       *service.AnalysisService
	validator     *validator.Validate
	maxUploadSize int64
}

func NewAnalysisHandler(svc *service.AnalysisService, v *validator.Validate, maxUploadSize int64) *AnalysisHandler {
	return &AnalysisHandler{
		service:       svc,
		validator:     v,
		maxUploadSize: maxUploadSize,
	}
}

// Analyze handles POST /api/analysis/analyze
//
// The audio file arrives as multipart form data alongside the optional
// artist_id, platform, target_markets (comma-separated) and lyrics fields.
// The response is 202 with the job ID; the analysis itself runs on the
// worker queue.
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > h.maxUploadSize {
		return response.ValidationError(c, "File size exceeds limit", map[string]interface{}{
			"maxSize":  h.maxUploadSize,
			"fileSize": file.Size,
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		return response.ValidationError(c, "Invalid file type. Supported: MP3, WAV, FLAC, M4A, OGG", map[string]interface{}{
			"extension": ext,
		})
	}

	meta := model.TrackMetadata{
		ArtistID: c.FormValue("artist_id"),
		Platform: c.FormValue("platform"),
		Lyrics:   c.FormValue("lyrics"),
	}
	if raw := strings.TrimSpace(c.FormValue("target_markets")); raw != "" {
		for _, market := range strings.Split(raw, ",") {
			if market = strings.TrimSpace(market); market != "" {
				meta.TargetMarkets = append(meta.TargetMarkets, market)
			}
		}
	}
	if err := h.validator.Struct(&meta); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Submit(c.Context(), file.Filename, f, meta)
	if err != nil {
		return response.SubmissionError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/analysis/jobs/:jobId
func (h *AnalysisHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// History handles GET /api/analysis/history
func (h *AnalysisHandler) History(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return response.ValidationError(c, "limit must be a positive integer", nil)
		}
		limit = n
	}

	entries, err := h.service.History(c.Context(), limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"history": entries})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
