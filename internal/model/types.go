package model

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

// Info is what the loaded artifact reports about itself.
type Info struct {
	Producer    string `json:"producer,omitempty"`
	Description string `json:"description,omitempty"`
	Version     int64  `json:"version"`
}
