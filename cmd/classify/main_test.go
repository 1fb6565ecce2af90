package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/model"
	"github.com/Brownie44l1/tumorscan/internal/preprocess"
)

type recordingClassifier struct {
	got int
}

func (r *recordingClassifier) Predict(input []float32) (*model.PredictionResponse, error) {
	r.got = len(input)
	return &model.PredictionResponse{Class: "Pituitary Tumor", Confidence: 0.9312}, nil
}

func newPreprocessor(t *testing.T) *preprocess.Preprocessor {
	t.Helper()
	md := model.Metadata{
		InputShape:  []int64{1, 6, 6, 3},
		OutputShape: []int64{1, 1},
		Classes:     []string{"Pituitary Tumor"},
	}
	require.NoError(t, md.Normalize())
	return preprocess.New(md, zap.NewNop())
}

func TestDescribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 12, 9))))
	require.NoError(t, f.Close())

	c := &recordingClassifier{}
	out := describe(newPreprocessor(t), c, path)

	assert.Equal(t, "Tumor Type: Pituitary Tumor\nConfidence: 0.93", out)
	assert.Equal(t, 6*6*3, c.got)
}

func TestDescribeMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.png")

	out := describe(newPreprocessor(t), &recordingClassifier{}, path)
	assert.Contains(t, out, path+": ")
}
