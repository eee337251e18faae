package utils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectMIMEType(t *testing.T) {
	require.Equal(t, "image/png", DetectMIMEType(samplePNG(t)))
	require.Equal(t, "image/png", DetectMIMEType([]byte("not an image")))
}

func TestDownloadImage(t *testing.T) {
	data := samplePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	got, err := DownloadImage(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	require.Equal(t, data, got)

	_, err = DownloadImage(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

func TestConvertToWebPRejectsGarbage(t *testing.T) {
	_, err := ConvertToWebP([]byte("garbage"), 90)
	require.Error(t, err)
}
