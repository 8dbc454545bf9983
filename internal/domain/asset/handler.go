package asset

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mediastore/internal/middleware"
	"mediastore/internal/pkg/logger"
	"mediastore/internal/pkg/response"
)

// Limits bound request bodies. Inline JSON carries base64, so its ceiling is larger.
type Limits struct {
	RawMaxBytes    int64
	InlineMaxBytes int64
}

type Handler struct {
	service *Service
	limits  Limits
	log     *logger.Logger
}

func NewHandler(service *Service, limits Limits, log *logger.Logger) *Handler {
	return &Handler{service: service, limits: limits, log: log.With("component", "asset.Handler")}
}

func requester(c *gin.Context) Requester {
	return Requester{UserID: middleware.UserID(c), TenantID: middleware.TenantID(c)}
}

// Ingest godoc
// @Summary Store an inline data URL attached to a message
// @Tags Assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,409,413,500 {object} map[string]interface{}
// @Router /assets [post]
func (h *Handler) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.InlineMaxBytes)

	var req InlineIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	res, err := h.service.IngestInline(c.Request.Context(), requester(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// Upload godoc
// @Summary Store a raw binary body
// @Description MIME comes from Content-Type. Optional query: conversation_id, message_id, index, source_type, kind.
// @Tags Assets
// @Accept octet-stream
// @Produce json
// @Security BearerAuth
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,413,500 {object} map[string]interface{}
// @Router /assets/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.RawMaxBytes)

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.bindError(c, err)
		return
	}

	in := RawIngestRequest{
		Mime:           c.ContentType(),
		Data:           data,
		ConversationID: c.Query("conversation_id"),
		MessageID:      c.Query("message_id"),
		SourceType:     c.Query("source_type"),
		Kind:           c.Query("kind"),
	}
	if raw := c.Query("index"); raw != "" {
		idx, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "index must be a finite number >= 0")
			return
		}
		in.Index = &idx
	}

	res, err := h.service.IngestRaw(c.Request.Context(), requester(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// Link godoc
// @Summary Register an externally hosted asset
// @Tags Assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} map[string]interface{}
// @Router /assets/link [post]
func (h *Handler) Link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	res, err := h.service.RegisterLink(c.Request.Context(), requester(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// Get godoc
// @Summary Stream an asset or redirect to its remote location
// @Tags Assets
// @Produce octet-stream
// @Param id path string true "Asset ID"
// @Param token query string false "Bearer token for clients that cannot set headers"
// @Success 200 {file} binary
// @Success 302
// @Failure 401,404,500 {object} map[string]interface{}
// @Router /assets/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	d, err := h.service.Open(c.Request.Context(), requester(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if d.RedirectURL != "" {
		c.Redirect(http.StatusFound, d.RedirectURL)
		return
	}
	defer d.File.Close()

	mime := d.Asset.Mime
	if mime == "" {
		mime = defaultMime
	}
	c.Header("Content-Type", mime)
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, d.Asset.ID+"."+ExtForMime(mime), d.ModTime, d.File)
}

// Meta godoc
// @Summary Get asset catalog metadata
// @Tags Assets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Asset ID"
// @Router /assets/{id}/meta [get]
func (h *Handler) Meta(c *gin.Context) {
	a, err := h.service.Meta(c.Request.Context(), requester(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, a)
}

// List godoc
// @Summary List visible assets with storage totals
// @Tags Assets
// @Produce json
// @Security BearerAuth
// @Param source_type query string false "Comma-separated or repeated"
// @Param scope query string false "mine | tenant"
// @Param kind query string false "image | audio | video | file"
// @Param favorite query bool false "Filter by favorite flag"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Router /assets [get]
func (h *Handler) List(c *gin.Context) {
	f, err := parseListFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	page, err := h.service.List(c.Request.Context(), requester(c), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// Export godoc
// @Summary Download several assets as one zip
// @Description Ids that are not visible or not stored locally are skipped.
// @Tags Assets
// @Accept json
// @Produce application/zip
// @Security BearerAuth
// @Router /assets/zip [post]
func (h *Handler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	exp, err := h.service.PrepareExport(c.Request.Context(), requester(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename(h.service.now())+`"`)
	c.Header("X-Export-Included", strconv.Itoa(exp.Included()))
	c.Header("X-Export-Skipped", strconv.Itoa(exp.Skipped()))
	c.Status(http.StatusOK)

	if err := exp.WriteZip(c.Writer); err != nil {
		h.log.Error("zip export aborted mid-stream", "error", err)
	}
}

// Delete godoc
// @Summary Delete an asset (file + record)
// @Tags Assets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Asset ID"
// @Router /assets/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), requester(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "deleted")
}

// SetFavorite godoc
// @Summary Set the favorite flag
// @Tags Assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /assets/{id}/favorite [patch]
func (h *Handler) SetFavorite(c *gin.Context) {
	var req FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Favorite == nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "favorite must be a boolean")
		return
	}
	id := c.Param("id")
	if err := h.service.SetFavorite(c.Request.Context(), requester(c), id, *req.Favorite); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "is_favorite": *req.Favorite})
}

// SetPinned godoc
// @Summary Set the pinned flag
// @Tags Assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /assets/{id}/pin [patch]
func (h *Handler) SetPinned(c *gin.Context) {
	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Pinned == nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "pinned must be a boolean")
		return
	}
	id := c.Param("id")
	if err := h.service.SetPinned(c.Request.Context(), requester(c), id, *req.Pinned); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "is_pinned": *req.Pinned})
}

func parseListFilter(c *gin.Context) (ListFilter, error) {
	const op = "asset.parseListFilter"

	f := ListFilter{
		Scope: Scope(c.Query("scope")),
		Kind:  Kind(c.Query("kind")),
	}
	for _, raw := range c.QueryArray("source_type") {
		for _, v := range strings.Split(raw, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			st := SourceType(v)
			if ParseSourceType(v) != st {
				return f, validationErr(op, "unknown source_type %q", v)
			}
			f.SourceTypes = append(f.SourceTypes, st)
		}
	}
	if raw := c.Query("favorite"); raw != "" {
		fav, err := strconv.ParseBool(raw)
		if err != nil {
			return f, validationErr(op, "favorite must be true or false")
		}
		f.Favorite = &fav
	}
	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, validationErr(op, "limit must be an integer")
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		return f, validationErr(op, "offset must be an integer")
	}
	return f, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeError(c, &Error{Kind: KindTooLarge, Op: "asset.bind", Err: err})
		return
	}
	response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
}

// writeError maps the error kind to a response. Every refusal to reveal an asset shares one body.
func (h *Handler) writeError(c *gin.Context, err error) {
	var e *Error
	errors.As(err, &e)

	switch KindOf(err) {
	case KindValidation:
		msg := "Invalid request"
		if e != nil && e.Detail != "" {
			msg = e.Detail
		}
		if e != nil && len(e.Fields) > 0 {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", msg, e.Fields)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
	case KindNotFound, KindUnsupportedProvider, KindPathSafety:
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Asset not found")
	case KindConflict:
		response.Error(c, http.StatusConflict, "CONFLICT", "Asset already exists")
	case KindTooLarge:
		response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large")
	default:
		h.log.Error("asset request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
