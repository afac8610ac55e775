package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/soto-labs/registro-api/internal/models"
	"github.com/soto-labs/registro-api/internal/service"
	appErrors "github.com/soto-labs/registro-api/pkg/errors"
	"github.com/soto-labs/registro-api/pkg/response"
)

type registrationService interface {
	RegisterResident(ctx context.Context, req service.RegisterResidentRequest) (*service.RegisterResult, error)
	RegisterVisit(ctx context.Context, req service.RegisterVisitRequest) (*service.RegisterResult, error)
	Delete(ctx context.Context, kind models.RecordKind, id int64) error
	PrimaryPhoto(ctx context.Context, kind models.RecordKind, id int64) (*service.PhotoContent, error)
}

type lifecycleService interface {
	ListActive(ctx context.Context) (*models.RecordListing, error)
	Sweep(ctx context.Context) (int64, error)
}

type exportService interface {
	Generate(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error)
}

// RecordHandler exposes the registration, listing, retake, photo and
// deletion endpoints for residents and visits.
type RecordHandler struct {
	registration registrationService
	lifecycle    lifecycleService
	export       exportService
}

// NewRecordHandler constructs RecordHandler. The export service may be nil
// when exports are disabled.
func NewRecordHandler(registration registrationService, lifecycle lifecycleService, export exportService) *RecordHandler {
	return &RecordHandler{registration: registration, lifecycle: lifecycle, export: export}
}

// RegisterResident godoc
// @Summary Register a resident or retake their photos
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.RegisterResidentRequest true "Resident payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /residents [post]
func (h *RecordHandler) RegisterResident(c *gin.Context) {
	var req service.RegisterResidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.registration.RegisterResident(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.RecordID > 0 {
		response.OK(c, result, result.Message)
		return
	}
	response.Created(c, result, result.Message)
}

// RegisterVisit godoc
// @Summary Register a visit or retake its photos
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.RegisterVisitRequest true "Visit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /visits [post]
func (h *RecordHandler) RegisterVisit(c *gin.Context) {
	var req service.RegisterVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.registration.RegisterVisit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.RecordID > 0 {
		response.OK(c, result, result.Message)
		return
	}
	response.Created(c, result, result.Message)
}

// List godoc
// @Summary List residents and active visits
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	listing, err := h.lifecycle.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, listing, "")
}

// Delete godoc
// @Summary Delete a record and its photo folder
// @Tags Records
// @Produce json
// @Param kind path string true "Record kind (resident or visit)"
// @Param id path int true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{kind}/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	kind, id, err := recordTarget(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.registration.Delete(c.Request.Context(), kind, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nil, "Record deleted successfully")
}

// PrimaryPhoto godoc
// @Summary Serve a record's primary photo
// @Tags Records
// @Produce image/jpeg
// @Param kind path string true "Record kind (resident or visit)"
// @Param id path int true "Record ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /records/{kind}/{id}/photo [get]
func (h *RecordHandler) PrimaryPhoto(c *gin.Context) {
	kind, id, err := recordTarget(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	photo, err := h.registration.PrimaryPhoto(c.Request.Context(), kind, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, photo.MimeType, photo.Data)
}

// Sweep godoc
// @Summary Remove expired visits and their folders
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /visits/sweep [post]
func (h *RecordHandler) Sweep(c *gin.Context) {
	removed, err := h.lifecycle.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed}, fmt.Sprintf("%d expired visit(s) removed", removed))
}

// Export godoc
// @Summary Export the active listing as CSV or PDF
// @Tags Records
// @Produce text/csv
// @Param format query string false "Export format (csv or pdf)"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /records/export [get]
func (h *RecordHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.export.Generate(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func recordTarget(c *gin.Context) (models.RecordKind, int64, error) {
	kind, err := models.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, "id must be a positive integer")
	}
	return kind, id, nil
}
