package document

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/abduss/benefits/internal/logger"
	"github.com/abduss/benefits/internal/request"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FormField is the multipart field carrying uploaded files.
const FormField = "documents"

// RegisterRoutes mounts document upload, download and detach endpoints.
func RegisterRoutes(group *gin.RouterGroup, supervisor *Supervisor, binder *Binder, gateway *Gateway, metrics *Metrics) {
	handler := &httpHandler{supervisor: supervisor, binder: binder, gateway: gateway, metrics: metrics}
	group.POST("/requests/:requestID/documents", handler.upload)
	group.DELETE("/requests/:requestID/documents/:objectID", handler.detach)
	group.GET("/documents/:objectID", handler.download)
	group.GET("/documents/:objectID/status", handler.status)
}

type httpHandler struct {
	supervisor *Supervisor
	binder     *Binder
	gateway    *Gateway
	metrics    *Metrics
}

type uploadedFile struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Type     string    `json:"type"`
	URL      string    `json:"url"`
	Attempts int       `json:"attempts"`
}

type failedFile struct {
	Name     string      `json:"name"`
	Kind     FailureKind `json:"kind"`
	Attempts int         `json:"attempts"`
	Error    string      `json:"error"`
}

func (h *httpHandler) upload(c *gin.Context) {
	actor, ok := request.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	policy := h.supervisor.Policy()
	limit := int64(policy.MaxFiles)*policy.MaxFileSize + mib
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart body"})
		return
	}
	headers := form.File[FormField]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s field is required", FormField)})
		return
	}

	files := make([]FileInput, 0, len(headers))
	for _, fh := range headers {
		files = append(files, fileInput(fh))
	}

	result, err := h.supervisor.UploadAll(c.Request.Context(), requestID, actor, files)
	body := gin.H{
		"uploaded": uploadedView(result.Uploaded),
		"failed":   failedView(result.Failed),
	}
	if err != nil {
		body["error"] = err.Error()
		c.JSON(statusFor(err), body)
		return
	}
	body["message"] = fmt.Sprintf("%d document(s) uploaded successfully", len(result.Uploaded))
	c.JSON(http.StatusCreated, body)
}

func fileInput(fh *multipart.FileHeader) FileInput {
	return FileInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func uploadedView(uploads []Upload) []uploadedFile {
	out := make([]uploadedFile, 0, len(uploads))
	for _, up := range uploads {
		ref := up.Reference
		out = append(out, uploadedFile{
			ID:       ref.ID,
			Name:     ref.OriginalName,
			Size:     ref.Size,
			Type:     ref.ContentType,
			URL:      "/v1/documents/" + ref.ID.String(),
			Attempts: up.Attempts,
		})
	}
	return out
}

func failedView(failures []FileFailure) []failedFile {
	out := make([]failedFile, 0, len(failures))
	for _, f := range failures {
		out = append(out, failedFile{Name: f.Name, Kind: f.Kind, Attempts: f.Attempts, Error: f.Reason()})
	}
	return out
}

func (h *httpHandler) download(c *gin.Context) {
	actor, ok := request.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	objectID, err := uuid.Parse(c.Param("objectID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	dl, err := h.gateway.Open(c.Request.Context(), objectID, actor)
	if err != nil {
		writeError(c, err, "failed to open document")
		return
	}
	defer dl.Body.Close()

	c.Header("Content-Type", dl.Object.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name()))
	c.Header("Content-Length", strconv.FormatInt(dl.Object.Length, 10))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	n, err := io.Copy(c.Writer, dl.Body)
	h.metrics.downloaded(n)
	if err != nil {
		// Headers are already sent; the short body tells the client.
		logger.FromContext(c.Request.Context()).Error("document stream interrupted",
			zap.String("object_id", objectID.String()),
			zap.Int64("sent", n),
			zap.Error(err),
		)
	}
}

func (h *httpHandler) status(c *gin.Context) {
	actor, ok := request.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	objectID, err := uuid.Parse(c.Param("objectID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	st, err := h.gateway.Status(c.Request.Context(), objectID, actor)
	if err != nil {
		writeError(c, err, "failed to check document")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *httpHandler) detach(c *gin.Context) {
	actor, ok := request.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	objectID, err := uuid.Parse(c.Param("objectID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	if err := h.binder.Detach(c.Request.Context(), requestID, objectID, actor); err != nil {
		writeError(c, err, "failed to delete document")
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrRequestNotEditable):
		return http.StatusForbidden
	case errors.Is(err, request.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, ErrUploadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCanceled):
		return 499
	case errors.Is(err, ErrStream), errors.Is(err, ErrVerification):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error(fallback, zap.Error(err))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
