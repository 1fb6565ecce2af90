package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/genomics"
	"github.com/Brownie44l1/tumorscan/internal/model"
	"github.com/Brownie44l1/tumorscan/internal/preprocess"
	"github.com/Brownie44l1/tumorscan/internal/upload"
)

// Classifier is the loaded model as the handlers see it.
type Classifier interface {
	Predict(inputData []float32) (*model.PredictionResponse, error)
	Info() model.Info
}

const unsupportedTypeMessage = "Unsupported file type. Please upload a valid image (jpg, png, etc.)."

// formOverhead is the room left above the upload limit for multipart
// headers and the other form fields.
const formOverhead = 1 << 20

type Handler struct {
	classifier    Classifier
	metadata      model.Metadata
	preprocessor  *preprocess.Preprocessor
	store         upload.Store
	allowed       upload.AllowList
	analyzer      *genomics.Analyzer
	maxUploadSize int64
	log           *zap.Logger
}

type Deps struct {
	Classifier    Classifier
	Metadata      model.Metadata
	Store         upload.Store
	Allowed       upload.AllowList
	Analyzer      *genomics.Analyzer
	MaxUploadSize int64
}

func NewHandler(deps Deps, log *zap.Logger) *Handler {
	return &Handler{
		classifier:    deps.Classifier,
		metadata:      deps.Metadata,
		preprocessor:  preprocess.New(deps.Metadata, log),
		store:         deps.Store,
		allowed:       deps.Allowed,
		analyzer:      deps.Analyzer,
		maxUploadSize: deps.MaxUploadSize,
		log:           log,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"model":   h.classifier.Info(),
		"classes": h.metadata.Classes,
	})
}

// Predict classifies an already preprocessed tensor.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	expectedSize := h.metadata.InputSize()
	if len(req.Image) != expectedSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image))})
		return
	}

	result, err := h.classifier.Predict(req.Image)
	if err != nil {
		h.log.Error("Prediction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PredictFromImage classifies an uploaded image without storing it.
func (h *Handler) PredictFromImage(c *gin.Context) {
	file, err := h.formFile(c, "image")
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return
	}

	data, ok := h.readUpload(c, file)
	if !ok {
		return
	}

	result, err := h.classify(data, upload.Extension(file.Filename))
	if err != nil {
		h.writeClassifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UploadMRI stores an allowed scan and classifies it.
func (h *Handler) UploadMRI(c *gin.Context) {
	file, err := h.formFile(c, "file")
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided. Use 'file' as the form field name"})
		return
	}

	ext, err := h.allowed.Check(file.Filename)
	if err != nil {
		h.log.Info("Rejected upload", zap.String("filename", file.Filename))
		c.JSON(http.StatusOK, gin.H{"error": unsupportedTypeMessage})
		return
	}

	data, ok := h.readUpload(c, file)
	if !ok {
		return
	}

	path, err := h.save(c.Request.Context(), ext, data, file)
	if err != nil {
		h.log.Error("Failed to store upload", zap.String("filename", file.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	result, err := h.classify(data, ext)
	if err != nil {
		h.writeClassifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "MRI uploaded successfully",
		"file_path":       path,
		"predicted_class": result.Class,
		"confidence":      result.Confidence,
	})
}

func (h *Handler) AnalyzeGeneSequence(c *gin.Context) {
	var req genomics.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	result, err := h.analyzer.Analyze(req)
	if err != nil {
		if errors.Is(err, genomics.ErrEmptySequence) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("Gene analysis failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// formFile caps the request body before the multipart form is parsed, so an
// oversized upload is cut off instead of buffered.
func (h *Handler) formFile(c *gin.Context, field string) (*multipart.FileHeader, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+formOverhead)
	return c.FormFile(field)
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// readUpload enforces the size limit and reads the whole part into memory.
// The bytes are needed twice, once for storage and once for decoding.
func (h *Handler) readUpload(c *gin.Context, file *multipart.FileHeader) ([]byte, bool) {
	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return nil, false
	}

	data, err := readFileHeader(file)
	if err != nil {
		h.log.Error("Failed to read upload", zap.String("filename", file.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return nil, false
	}

	h.log.Info("Received file",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size))

	return data, true
}

func readFileHeader(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) save(ctx context.Context, ext string, data []byte, file *multipart.FileHeader) (string, error) {
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return h.store.Save(ctx, ext, bytes.NewReader(data), int64(len(data)), contentType)
}

func (h *Handler) classify(data []byte, ext string) (*model.PredictionResponse, error) {
	inputData, err := h.preprocessor.Process(bytes.NewReader(data), ext)
	if err != nil {
		return nil, err
	}
	return h.classifier.Predict(inputData)
}

func (h *Handler) writeClassifyError(c *gin.Context, err error) {
	if errors.Is(err, preprocess.ErrDecode) {
		h.log.Info("Undecodable image", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image format. Supported: JPEG, PNG, GIF, BMP, TIFF, DICOM"})
		return
	}
	h.log.Error("Prediction failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
}
