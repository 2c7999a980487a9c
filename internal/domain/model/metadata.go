package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// ClassifierType is recorded in metadata for both heads.
const ClassifierType = "LogisticRegression"

// Metadata describes one training run. It is written once and never updated.
type Metadata struct {
	CategoryModel TargetMetadata `json:"category_model"`
	PriorityModel TargetMetadata `json:"priority_model"`
	TrainingInfo  TrainingInfo   `json:"training_info"`
}

// TargetMetadata holds the diagnostics of one classification head.
type TargetMetadata struct {
	Type           string        `json:"type"`
	Accuracy       float64       `json:"accuracy"`
	MeanConfidence float64       `json:"mean_confidence"`
	Classes        []string      `json:"classes"`
	Converged      bool          `json:"converged"`
	NIter          int           `json:"n_iter"`
	PerClass       []ClassReport `json:"per_class,omitempty"`
}

// ClassReport is one row of a per-class evaluation.
type ClassReport struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// TrainingInfo records the split configuration and identity of a run.
type TrainingInfo struct {
	NTrainSamples int     `json:"n_train_samples"`
	NTestSamples  int     `json:"n_test_samples"`
	TestSize      float64 `json:"test_size"`
	RandomState   int64   `json:"random_state"`
	TrainedAt     string  `json:"trained_at"`
	RunID         string  `json:"run_id"`
	DataRunID     string  `json:"data_run_id"`
	ModelVersion  string  `json:"model_version"`
	Fingerprint   string  `json:"fingerprint"`
	NFeatures     int     `json:"n_features"`
}

// Target returns the metadata for the named head.
func (m *Metadata) Target(name string) *TargetMetadata {
	switch name {
	case TargetCategory:
		return &m.CategoryModel
	case TargetPriority:
		return &m.PriorityModel
	default:
		return nil
	}
}

// Fingerprint hashes the vocabulary, the IDF weights and both label spaces.
// Every artifact of a bundle carries it so that pieces from different runs
// cannot be combined.
func Fingerprint(terms []string, idf []float64, category, priority []string) string {
	h := sha256.New()
	var buf [8]byte

	writeStrings := func(tag string, ss []string) {
		h.Write([]byte(tag))
		binary.BigEndian.PutUint64(buf[:], uint64(len(ss)))
		h.Write(buf[:])
		for _, s := range ss {
			binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
			h.Write(buf[:])
			h.Write([]byte(s))
		}
	}

	writeStrings("terms", terms)
	h.Write([]byte("idf"))
	binary.BigEndian.PutUint64(buf[:], uint64(len(idf)))
	h.Write(buf[:])
	for _, w := range idf {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(w))
		h.Write(buf[:])
	}
	writeStrings("category", category)
	writeStrings("priority", priority)

	return hex.EncodeToString(h.Sum(nil))
}
