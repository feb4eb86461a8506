package handler

import (
	"errors"
	"net/http"

	"runquest/internal/service"

	"github.com/gin-gonic/gin"
)

// multipart 头部等额外开销
const multipartOverhead = 1 << 20

type UploadHandler struct {
	proofs *service.ProofService
}

func NewUploadHandler(proofs *service.ProofService) *UploadHandler {
	return &UploadHandler{proofs: proofs}
}

// Upload 上传证明图片，表单字段 file
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.proofs.MaxBytes()+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, service.ErrFileTooLarge)
			return
		}
		badRequest(c, err)
		return
	}
	if fh.Size > h.proofs.MaxBytes() {
		writeError(c, service.ErrFileTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	res, err := h.proofs.Upload(c.Request.Context(), fh.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
