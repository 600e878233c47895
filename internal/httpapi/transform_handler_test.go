/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package httpapi

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acronis/go-appkit/testutil"
	"github.com/stretchr/testify/require"
)

const testErrDomain = "Cropd"

// makePNG encodes a w×h image whose pixel (x, y) has R=10x, G=10y.
func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(10 * x), G: uint8(10 * y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func doTransformRequest(h *TransformHandler, method, query string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/transform?"+query, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func pixelAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestTransformHandler_BadRequests(t *testing.T) {
	h := NewTransformHandler(testErrDomain)
	validPNG := makePNG(t, 4, 4)

	tests := []struct {
		name        string
		method      string
		query       string
		body        []byte
		wantErrCode string
	}{
		{
			name:        "wrong http verb",
			method:      http.MethodGet,
			query:       "op=rotate-cw&coords=0,0,2,2",
			body:        validPNG,
			wantErrCode: ErrCodeInvalidMethod,
		},
		{
			name:        "unknown operation",
			method:      http.MethodPost,
			query:       "op=rotate-180&coords=0,0,2,2",
			body:        validPNG,
			wantErrCode: ErrCodeInvalidOperation,
		},
		{
			name:        "missing operation",
			method:      http.MethodPost,
			query:       "coords=0,0,2,2",
			body:        validPNG,
			wantErrCode: ErrCodeInvalidOperation,
		},
		{
			name:        "malformed coordinates",
			method:      http.MethodPost,
			query:       "op=rotate-cw&coords=abc,0,1,1",
			body:        validPNG,
			wantErrCode: ErrCodeInvalidCoordinates,
		},
		{
			name:        "wrong number of coordinates",
			method:      http.MethodPost,
			query:       "op=rotate-cw&coords=0,0,2",
			body:        validPNG,
			wantErrCode: ErrCodeInvalidCoordinates,
		},
		{
			name:        "empty requested region",
			method:      http.MethodPost,
			query:       "op=rotate-cw&coords=0,0,0,2",
			body:        validPNG,
			wantErrCode: ErrCodeEmptyRegion,
		},
		{
			name:        "content length out of range",
			method:      http.MethodPost,
			query:       "op=rotate-cw&coords=0,0,2,2",
			body:        make([]byte, DefaultMaxContentLength+1),
			wantErrCode: ErrCodeInvalidContentLength,
		},
		{
			name:        "body is not a png image",
			method:      http.MethodPost,
			query:       "op=rotate-cw&coords=0,0,2,2",
			body:        []byte("definitely not a png"),
			wantErrCode: ErrCodeInvalidImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doTransformRequest(h, tt.method, tt.query, tt.body)
			testutil.RequireErrorInRecorder(t, rec, http.StatusBadRequest, testErrDomain, tt.wantErrCode)
		})
	}
}

func TestTransformHandler_ImageTooLarge(t *testing.T) {
	h := NewTransformHandler(testErrDomain)
	h.MaxDimension = 3

	rec := doTransformRequest(h, http.MethodPost, "op=rotate-cw&coords=0,0,2,2", makePNG(t, 4, 4))
	testutil.RequireErrorInRecorder(t, rec, http.StatusBadRequest, testErrDomain, ErrCodeImageTooLarge)
}

func TestTransformHandler_NoIntersection(t *testing.T) {
	h := NewTransformHandler(testErrDomain)

	rec := doTransformRequest(h, http.MethodPost, "op=rotate-cw&coords=10,10,5,5", makePNG(t, 4, 4))
	require.Equal(t, http.StatusNoContent, rec.Code)
	testutil.RequireEmptyBodyInRecorder(t, rec)
}

func TestTransformHandler_RotateCroppedRegion(t *testing.T) {
	h := NewTransformHandler(testErrDomain)
	srcPNG := makePNG(t, 4, 4)

	rec := doTransformRequest(h, http.MethodPost, "op=rotate-cw&coords=0,0,2,2", srcPNG)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ContentTypeImagePNG, rec.Header().Get("Content-Type"))

	got, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())

	// Source pixel (x, y) of the 2×2 region moves to (1-y, x).
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			want := color.NRGBA{R: uint8(10 * x), G: uint8(10 * y), A: 255}
			require.Equal(t, want, pixelAt(got, 1-y, x), "source pixel (%d, %d)", x, y)
		}
	}
}

func TestTransformHandler_PartialIntersection(t *testing.T) {
	h := NewTransformHandler(testErrDomain)

	// Only a 2×1 strip of the requested 5×5 region lies within the 4×4 image.
	rec := doTransformRequest(h, http.MethodPost, "op=flip-h&coords=2,3,5,5", makePNG(t, 4, 4))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 2, 1), got.Bounds())
	require.Equal(t, color.NRGBA{R: 30, G: 30, A: 255}, pixelAt(got, 0, 0))
	require.Equal(t, color.NRGBA{R: 20, G: 30, A: 255}, pixelAt(got, 1, 0))
}

func TestTransformHandler_NegativeSpan(t *testing.T) {
	h := NewTransformHandler(testErrDomain)

	// coords 2,0,-2,2 selects the same region as 0,0,2,2.
	rec := doTransformRequest(h, http.MethodPost, "op=flip-v&coords=2,0,-2,2", makePNG(t, 4, 4))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := png.Decode(rec.Body)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())

	// Vertical flip of the region: pixel (x, y) moves to (x, 1-y).
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			want := color.NRGBA{R: uint8(10 * x), G: uint8(10 * y), A: 255}
			require.Equal(t, want, pixelAt(got, x, 1-y), "source pixel (%d, %d)", x, y)
		}
	}
}
