// Package config holds the tunables shared by the extraction, retrieval,
// and matching tools.
package config

import (
	"errors"
	"time"
)

// Pipeline controls the bounded-queue stage topology for a driver.
// DefaultPipeline returns the defaults; a zero Pipeline{} fails validation
// because its queue capacities and worker counts are zero.
type Pipeline struct {
	LoadWorkers  int // worker count for the Load/LoadFeatures stage; default 4
	LoadQueueCap int // queue capacity feeding the Load stage; default 10
	GPUQueueCap  int // queue capacity feeding the pinned GPU stage; default 5
	PostWorkers  int // worker count for PostProcess; default 4
	WriteWorkers int // worker count for Write; default 4
	WriteQueueCap int

	StageTimeout time.Duration // 0 = no timeout; the core never times out a task itself
}

// Extraction configures the feature-extraction driver.
type Extraction struct {
	Pipeline

	Normalization    string  // "l1root" (default) or "l2"
	Quantize         bool    // produce uint8 descriptors instead of float32
	QuantizationScale float64 // default 512.0

	NMSRadius           float64 // default 4.0; grid cell side ≈ 10*NMSRadius
	NMSKeepPerCell      int     // default 2
	NMSKeepOrientation  bool    // if false, dedupe by (x,y)
}

// Retrieval configures the pair-retrieval tool.
type Retrieval struct {
	Strategies string // e.g. "gps+vlad", parsed by retrieval.ParseStrategies

	Window int // sequential window W

	GPSRadius      float64
	GPSMaxNeighbor int
	UseIMUFilter   bool
	IMUMaxAngle    float64 // radians

	VLADSigma     float64 // default 1.0
	VLADTopK      int
	CodebookPath  string
	PCAModelPath  string

	VocabPath string
	VocabTopK int

	ScoreFloor float64 // default 0.01
	MaxPairs   int     // 0 = unlimited
}

// Matching configures the pair-matching driver.
type Matching struct {
	Pipeline

	RatioTest       float64 // default 0.8
	DistanceMax     float64 // default 0.7
	MaxMatches      int     // -1 = unlimited
	MutualBestMatch bool    // default true

	UseGuidedMatching   bool
	FundamentalThreshold float64 // default 16.0 (Sampson)
	HomographyThreshold  float64 // default 32.0 (reprojection)
}

// LogLevel controls the verbosity of the shared structured logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// DefaultPipeline returns the default Load/GPU/Write stage topology shared
// by the extraction and matching drivers.
func DefaultPipeline() Pipeline {
	return Pipeline{
		LoadWorkers:   4,
		LoadQueueCap:  10,
		GPUQueueCap:   5,
		PostWorkers:   4,
		WriteWorkers:  4,
		WriteQueueCap: 10,
	}
}

// DefaultExtraction returns production defaults for the extraction driver.
func DefaultExtraction() Extraction {
	return Extraction{
		Pipeline:          DefaultPipeline(),
		Normalization:     "l1root",
		Quantize:          true,
		QuantizationScale: 512.0,
		NMSRadius:         4.0,
		NMSKeepPerCell:    2,
	}
}

// DefaultRetrieval returns production defaults for the retrieval tool.
func DefaultRetrieval() Retrieval {
	return Retrieval{
		Window:         2,
		GPSMaxNeighbor: 10,
		VLADSigma:      1.0,
		VLADTopK:       10,
		VocabTopK:      10,
		ScoreFloor:     0.01,
	}
}

// DefaultMatching returns production defaults for the matching driver.
func DefaultMatching() Matching {
	return Matching{
		Pipeline:             DefaultPipeline(),
		RatioTest:            0.8,
		DistanceMax:          0.7,
		MaxMatches:           -1,
		MutualBestMatch:      true,
		FundamentalThreshold: 16.0,
		HomographyThreshold:  32.0,
	}
}

// Validate checks an Extraction config for internal consistency.
func (c Extraction) Validate() error {
	if c.Normalization != "l1root" && c.Normalization != "l2" {
		return errors.New("config: Normalization must be \"l1root\" or \"l2\"")
	}
	if c.NMSKeepPerCell <= 0 {
		return errors.New("config: NMSKeepPerCell must be positive")
	}
	return validatePipeline(c.Pipeline)
}

// Validate checks a Matching config for internal consistency.
func (c Matching) Validate() error {
	if c.RatioTest <= 0 || c.RatioTest > 1 {
		return errors.New("config: RatioTest must be in (0, 1]")
	}
	return validatePipeline(c.Pipeline)
}

// Validate checks a Retrieval config for internal consistency.
func (c Retrieval) Validate() error {
	if c.ScoreFloor < 0 {
		return errors.New("config: ScoreFloor must be non-negative")
	}
	if c.Window < 0 {
		return errors.New("config: Window must be non-negative")
	}
	return nil
}

func validatePipeline(p Pipeline) error {
	if p.LoadQueueCap <= 0 || p.GPUQueueCap <= 0 || p.WriteQueueCap <= 0 {
		return errors.New("config: queue capacities must be positive")
	}
	if p.LoadWorkers <= 0 {
		return errors.New("config: LoadWorkers must be positive")
	}
	return nil
}
