package ports

// Calibrator maps a raw judge confidence plus side features to a calibrated score
type Calibrator interface {
	Predict(judgeScore float64, features map[string]float64) float64
}
