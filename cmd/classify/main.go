// Command classify is an interactive console for the tumor classifier.
// Each line entered is an image path; the predicted tumor type and its
// confidence are printed. Paths given as arguments are classified without
// prompting.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Brownie44l1/tumorscan/internal/config"
	"github.com/Brownie44l1/tumorscan/internal/model"
	"github.com/Brownie44l1/tumorscan/internal/preprocess"
	"github.com/Brownie44l1/tumorscan/internal/upload"
	"github.com/Brownie44l1/tumorscan/pkg/logger"
)

type classifier interface {
	Predict(inputData []float32) (*model.PredictionResponse, error)
}

func main() {
	if err := mainImpl(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl(paths []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	// Console output belongs to the prompt; only warnings are logged.
	log, err := logger.New("warn")
	if err != nil {
		return err
	}
	defer log.Sync()

	modelServer, err := model.NewServer(model.Options{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		RuntimeLib:   cfg.Model.RuntimeLib,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer modelServer.Close()

	p := preprocess.New(modelServer.Metadata, log)

	if len(paths) > 0 {
		for _, path := range paths {
			fmt.Println(describe(p, modelServer, path))
		}
		return nil
	}

	rl, err := readline.New("image> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		path := strings.Trim(strings.TrimSpace(line), `"'`)
		if path == "" {
			continue
		}
		fmt.Println(describe(p, modelServer, path))
	}
	return nil
}

func describe(p *preprocess.Preprocessor, c classifier, path string) string {
	result, err := classifyFile(p, c, path)
	if err != nil {
		return fmt.Sprintf("%s: %v", path, err)
	}
	return formatResult(result)
}

func classifyFile(p *preprocess.Preprocessor, c classifier, path string) (*model.PredictionResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	inputData, err := p.Process(file, upload.Extension(path))
	if err != nil {
		return nil, err
	}
	return c.Predict(inputData)
}

func formatResult(result *model.PredictionResponse) string {
	return fmt.Sprintf("Tumor Type: %s\nConfidence: %.2f", result.Class, result.Confidence)
}
