package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxSession owns the tensors bound to an AdvancedSession. Run overwrites
// them in place, so callers must not run it concurrently.
type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	info         Info
}

func newONNXSession(modelPath string, md Metadata) (*onnxSession, error) {
	if err := checkModelIO(modelPath, md); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	s := &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}
	s.info = s.readInfo()
	return s, nil
}

// checkModelIO fails fast when the artifact does not expose the tensor
// names the metadata promises.
func checkModelIO(modelPath string, md Metadata) error {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to inspect model %s: %w", modelPath, err)
	}
	if !hasTensor(inputs, md.InputName) {
		return fmt.Errorf("%w: model has no input named %q", ErrInvalidMetadata, md.InputName)
	}
	if !hasTensor(outputs, md.OutputName) {
		return fmt.Errorf("%w: model has no output named %q", ErrInvalidMetadata, md.OutputName)
	}
	return nil
}

func hasTensor(infos []ort.InputOutputInfo, name string) bool {
	for _, info := range infos {
		if info.Name == name {
			return true
		}
	}
	return false
}

func (s *onnxSession) readInfo() Info {
	var info Info
	metadata, err := s.session.GetModelMetadata()
	if err != nil {
		return info
	}
	defer metadata.Destroy()
	info.Producer, _ = metadata.GetProducerName()
	info.Description, _ = metadata.GetDescription()
	info.Version, _ = metadata.GetVersion()
	return info
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output := make([]float32, len(s.outputTensor.GetData()))
	copy(output, s.outputTensor.GetData())
	return output, nil
}

func (s *onnxSession) Info() Info {
	return s.info
}

func (s *onnxSession) Close() error {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	return nil
}
