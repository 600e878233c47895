/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

// Package httpapi contains the HTTP handlers of the service API.
package httpapi

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"

	"github.com/imagetools/cropd/internal/imaging"
)

// ContentTypeImagePNG is the MIME media type of transformed images in responses.
const ContentTypeImagePNG = "image/png"

// Error codes used in 400 response bodies.
const (
	ErrCodeInvalidMethod        = "invalidMethod"
	ErrCodeInvalidOperation     = "invalidOperation"
	ErrCodeInvalidCoordinates   = "invalidCoordinates"
	ErrCodeEmptyRegion          = "emptyRegion"
	ErrCodeInvalidContentLength = "invalidContentLength"
	ErrCodeInvalidImage         = "invalidImage"
	ErrCodeImageTooLarge        = "imageTooLarge"
)

// Request query parameters.
const (
	queryParamOp     = "op"
	queryParamCoords = "coords"
)

// Restriction values for inbound images.
const (
	DefaultMaxContentLength = 100000
	DefaultMaxDimension     = 1000
)

// TransformHandler serves a single image transformation request: it validates
// the operation, the region coordinates and the PNG payload, applies the
// transformation and writes the re-encoded result.
//
// Outcome mapping: validation failure -> 400, region not intersecting the
// image -> 204, otherwise -> 200 with an image/png body.
type TransformHandler struct {
	ErrDomain        string
	MaxContentLength int64
	MaxDimension     int
}

// NewTransformHandler creates a new TransformHandler with default restrictions.
func NewTransformHandler(errDomain string) *TransformHandler {
	return &TransformHandler{
		ErrDomain:        errDomain,
		MaxContentLength: DefaultMaxContentLength,
		MaxDimension:     DefaultMaxDimension,
	}
}

// ServeHTTP implements http.Handler.
func (h *TransformHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	// Any malformed part of the request, the verb included, is a client error.
	if r.Method != http.MethodPost {
		h.respondBadRequest(rw, logger, ErrCodeInvalidMethod,
			fmt.Sprintf("Method %q is not allowed, use POST.", r.Method))
		return
	}

	op, err := imaging.ParseOp(r.URL.Query().Get(queryParamOp))
	if err != nil {
		h.respondBadRequest(rw, logger, ErrCodeInvalidOperation, capitalizeError(err))
		return
	}

	region, err := parseCoords(r.URL.Query().Get(queryParamCoords))
	if err != nil {
		h.respondBadRequest(rw, logger, ErrCodeInvalidCoordinates, capitalizeError(err))
		return
	}
	if region.w == 0 || region.h == 0 {
		h.respondBadRequest(rw, logger, ErrCodeEmptyRegion, "Requested region must not be empty.")
		return
	}

	if r.ContentLength < 0 || r.ContentLength > h.MaxContentLength {
		h.respondBadRequest(rw, logger, ErrCodeInvalidContentLength,
			fmt.Sprintf("Content-Length must be known and not larger than %d bytes.", h.MaxContentLength))
		return
	}
	restapi.SetRequestMaxBodySize(rw, r, uint64(h.MaxContentLength))

	img, err := png.Decode(r.Body)
	if err != nil {
		h.respondBadRequest(rw, logger, ErrCodeInvalidImage, "Request body must contain a valid PNG image.")
		return
	}
	bounds := img.Bounds()
	if bounds.Dx() > h.MaxDimension || bounds.Dy() > h.MaxDimension {
		h.respondBadRequest(rw, logger, ErrCodeImageTooLarge,
			fmt.Sprintf("Image width and height must not be larger than %d.", h.MaxDimension))
		return
	}

	intersection := imaging.NormalizeRect(region.x, region.y, region.w, region.h).Intersect(bounds)
	if intersection.Empty() {
		// A valid request whose region lies outside the image is a distinguished
		// non-error outcome, not a client error.
		rw.WriteHeader(http.StatusNoContent)
		return
	}

	result := imaging.Transform(imaging.Crop(img, intersection), op)

	var buf bytes.Buffer
	if err := png.Encode(&buf, result); err != nil {
		if logger != nil {
			logger.Error("error while encoding transformed image", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.ErrDomain, logger)
		return
	}

	rw.Header().Set("Content-Type", ContentTypeImagePNG)
	rw.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	rw.WriteHeader(http.StatusOK)
	if _, err := rw.Write(buf.Bytes()); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

func (h *TransformHandler) respondBadRequest(rw http.ResponseWriter, logger log.FieldLogger, code, message string) {
	restapi.RespondError(rw, http.StatusBadRequest, restapi.NewError(h.ErrDomain, code, message), logger)
}

type regionSpec struct {
	x, y, w, h int
}

// parseCoords parses the "x,y,w,h" form. Width and height may be negative,
// representing a span extending in the negative direction.
func parseCoords(s string) (regionSpec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return regionSpec{}, fmt.Errorf("coordinates must be 4 comma-separated integers, got %q", s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return regionSpec{}, fmt.Errorf("coordinate %q is not an integer", p)
		}
		nums[i] = n
	}
	return regionSpec{x: nums[0], y: nums[1], w: nums[2], h: nums[3]}, nil
}

func capitalizeError(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
