package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/genomics"
	"github.com/Brownie44l1/tumorscan/internal/model"
)

type pageData struct {
	Sequence   string
	Errors     []string
	Alert      string
	Prediction *model.PredictionResponse
	Gene       *genomics.Analysis
}

func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", pageData{})
}

// SubmitForm handles the HTML form: an optional scan and an optional DNA
// sequence. The predicted class, when there is one, is the tumor type used
// for the gene analysis.
func (h *Handler) SubmitForm(c *gin.Context) {
	file, fileErr := h.formFile(c, "file")
	page := pageData{Sequence: c.PostForm("dna_sequence")}
	tumorType := c.PostForm("tumor_type")

	switch {
	case tooLarge(fileErr):
		page.Errors = append(page.Errors, "File too large")
	case fileErr == nil:
		ext, err := h.allowed.Check(file.Filename)
		switch {
		case err != nil:
			page.Errors = append(page.Errors, unsupportedTypeMessage)
		case file.Size > h.maxUploadSize:
			page.Errors = append(page.Errors, "File too large")
		default:
			page.Prediction = h.predictFormFile(c, ext, file, &page)
		}
	}
	if page.Prediction != nil {
		tumorType = page.Prediction.Class
	}

	if strings.TrimSpace(page.Sequence) != "" {
		result, err := h.analyzer.Analyze(genomics.Request{TumorType: tumorType, DNASequence: page.Sequence})
		switch {
		case errors.Is(err, genomics.ErrEmptySequence):
			page.Errors = append(page.Errors, err.Error())
		case err != nil:
			h.log.Error("Gene analysis failed", zap.Error(err))
			page.Errors = append(page.Errors, "Analysis failed")
		case result.Alert != "":
			page.Alert = result.Alert
		default:
			page.Gene = result.Analysis
		}
	}

	c.HTML(http.StatusOK, "index.html", page)
}

func (h *Handler) predictFormFile(c *gin.Context, ext string, file *multipart.FileHeader, page *pageData) *model.PredictionResponse {
	data, err := readFileHeader(file)
	if err != nil {
		h.log.Error("Failed to read upload", zap.String("filename", file.Filename), zap.Error(err))
		page.Errors = append(page.Errors, "Failed to read file")
		return nil
	}

	if _, err := h.save(c.Request.Context(), ext, data, file); err != nil {
		h.log.Error("Failed to store upload", zap.String("filename", file.Filename), zap.Error(err))
		page.Errors = append(page.Errors, "Failed to store file")
		return nil
	}

	result, err := h.classify(data, ext)
	if err != nil {
		h.log.Info("Form prediction failed", zap.Error(err))
		page.Errors = append(page.Errors, "Could not classify the uploaded image")
		return nil
	}
	return result
}
