package model

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Session runs one forward pass. Implementations need not be safe for
// concurrent use; Server serializes calls.
type Session interface {
	Run(input []float32) ([]float32, error)
	Info() Info
	Close() error
}

var ErrInputSize = errors.New("input size does not match model")

// Server is the process-wide classifier. It is loaded once and shared by
// every request.
type Server struct {
	Metadata Metadata

	mu          sync.Mutex
	session     Session
	ownsRuntime bool
	log         *zap.Logger
}

type Options struct {
	ModelPath    string
	MetadataPath string
	// RuntimeLib overrides the onnxruntime shared library location.
	RuntimeLib string
}

// NewServer initializes onnxruntime and loads the model. Any error means the
// process cannot serve.
func NewServer(opts Options, log *zap.Logger) (*Server, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}

	if opts.RuntimeLib != "" {
		ort.SetSharedLibraryPath(opts.RuntimeLib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	session, err := newONNXSession(opts.ModelPath, metadata)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}

	s := NewServerWithSession(metadata, session, log)
	s.ownsRuntime = true

	info := session.Info()
	log.Info("Model loaded",
		zap.String("path", opts.ModelPath),
		zap.String("producer", info.Producer),
		zap.Int64("version", info.Version),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.Strings("classes", metadata.Classes))

	return s, nil
}

// NewServerWithSession wraps an already loaded session. The metadata must
// have been normalized.
func NewServerWithSession(metadata Metadata, session Session, log *zap.Logger) *Server {
	return &Server{
		Metadata: metadata,
		session:  session,
		log:      log,
	}
}

func (s *Server) Predict(inputData []float32) (*PredictionResponse, error) {
	if want := s.Metadata.InputSize(); len(inputData) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, want, len(inputData))
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, errors.New("model server is closed")
	}
	outputData, err := s.session.Run(inputData)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if len(outputData) < len(s.Metadata.Classes) {
		return nil, fmt.Errorf("model returned %d values for %d classes", len(outputData), len(s.Metadata.Classes))
	}
	outputData = outputData[:len(s.Metadata.Classes)]

	predictions := make(map[string]float32, len(outputData))
	for i, val := range outputData {
		predictions[s.Metadata.Classes[i]] = val
	}

	maxIdx, maxVal := ArgMax(outputData)

	s.log.Debug("Prediction",
		zap.String("class", s.Metadata.Classes[maxIdx]),
		zap.Float32("confidence", maxVal))

	return &PredictionResponse{
		Class:       s.Metadata.Classes[maxIdx],
		Confidence:  maxVal,
		Predictions: predictions,
	}, nil
}

func (s *Server) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Info{}
	}
	return s.session.Info()
}

// ArgMax returns the index and value of the largest element. Ties resolve to
// the lowest index. An empty vector yields (-1, 0).
func ArgMax(values []float32) (int, float32) {
	if len(values) == 0 {
		return -1, 0
	}
	maxIdx := 0
	maxVal := values[0]
	for i, val := range values[1:] {
		if val > maxVal {
			maxVal = val
			maxIdx = i + 1
		}
	}
	return maxIdx, maxVal
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.log.Warn("Failed to close session", zap.Error(err))
		}
		s.session = nil
	}
	if s.ownsRuntime {
		ort.DestroyEnvironment()
		s.ownsRuntime = false
	}
}
