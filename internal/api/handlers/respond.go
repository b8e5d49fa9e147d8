package handlers

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/internal/vision"
	"github.com/your-org/classcam/pkg/dto"
)

const maxUploadBytes = 10 << 20

// respondError writes err with the status matching its engine kind.
func respondError(c *gin.Context, err error) {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch ee.Kind {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, dto.ErrorResponse{Error: ee.Error(), Kind: ee.Kind.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg, Kind: engine.KindValidation.String()})
}

// bindFrame binds req from JSON or a multipart form, then decodes the frame
// from the multipart "image" file or, failing that, from dataURL.
func bindFrame(c *gin.Context, req any, dataURL func() string) (image.Image, error) {
	if err := c.ShouldBind(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if fh, err := c.FormFile("image"); err == nil {
		if fh.Size > maxUploadBytes {
			return nil, fmt.Errorf("image exceeds %d bytes", maxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return vision.DecodeImage(data)
	}

	return vision.DecodeDataURL(dataURL())
}

// frameOrNil turns an empty payload into a nil frame so the engine reports
// it, after its own session checks.
func frameOrNil(img image.Image, err error) (image.Image, error) {
	if errors.Is(err, vision.ErrEmptyImage) {
		return nil, nil
	}
	return img, err
}
