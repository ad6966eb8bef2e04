// Package config holds the settings of the training job.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dvloznov/fraud-detection/internal/ml"
)

// EnvPrefix is prepended to every environment variable FromEnv reads.
const EnvPrefix = "FRAUD_"

// Trainer holds the classifier hyperparameters.
type Trainer struct {
	Label             string  `json:"label"`
	Features          string  `json:"features"`
	NumLeaves         int     `json:"num_leaves"`
	NumIterations     int     `json:"num_iterations"`
	MinSamplesPerLeaf int     `json:"min_samples_per_leaf"`
	LearningRate      float64 `json:"learning_rate"`
	MaxBins           int     `json:"max_bins"`
}

// TreeOptions converts the hyperparameters to classifier options.
func (t Trainer) TreeOptions() ml.TreeOptions {
	o := ml.DefaultTreeOptions()
	o.NumLeaves = t.NumLeaves
	o.NumIterations = t.NumIterations
	o.MinSamplesPerLeaf = t.MinSamplesPerLeaf
	o.LearningRate = t.LearningRate
	o.MaxBins = t.MaxBins
	return o
}

// Config is the full job configuration. Empty paths are derived from
// AssetRoot by Resolve.
type Config struct {
	AssetRoot    string
	Archive      string // local path or gs:// URI
	DatasetPath  string
	TrainPath    string
	TestPath     string
	ModelPath    string
	MetricsPath  string
	TestFraction float64
	Seed         uint64
	Trainer      Trainer
	LogLevel     string

	// Model publishing; disabled when ModelBucket is empty.
	ModelBucket string
	ModelPrefix string

	// Run ledger; BigQuery is used when Project is set.
	Project string
	Dataset string

	Narrate       bool
	NarratorModel string

	WriteMetrics bool
}

// Default returns the configuration of a plain local run.
func Default() Config {
	opts := ml.DefaultTreeOptions()
	return Config{
		AssetRoot:    "assets",
		TestFraction: 0.2,
		Seed:         1,
		Trainer: Trainer{
			Label:             "IsFraud",
			Features:          "Features",
			NumLeaves:         opts.NumLeaves,
			NumIterations:     opts.NumIterations,
			MinSamplesPerLeaf: opts.MinSamplesPerLeaf,
			LearningRate:      opts.LearningRate,
			MaxBins:           opts.MaxBins,
		},
		LogLevel:      "info",
		ModelPrefix:   "models/",
		Dataset:       "fraud_detection",
		NarratorModel: "gemini-2.5-flash",
		WriteMetrics:  true,
	}
}

// Resolve fills empty paths from AssetRoot using the standard layout.
func (c *Config) Resolve() {
	in := filepath.Join(c.AssetRoot, "input")
	out := filepath.Join(c.AssetRoot, "output")
	setDefault(&c.Archive, filepath.Join(in, "SyntheticCreditCardFraud.zip"))
	setDefault(&c.DatasetPath, filepath.Join(in, "SyntheticCreditCardFraud", "credit-card-data.csv"))
	setDefault(&c.TrainPath, filepath.Join(out, "trainData.csv"))
	setDefault(&c.TestPath, filepath.Join(out, "testData.csv"))
	setDefault(&c.ModelPath, filepath.Join(out, "model.zip"))
	setDefault(&c.MetricsPath, filepath.Join(out, "metrics.prom"))
}

func setDefault(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// FromEnv returns Default overridden by FRAUD_* environment variables.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	parse := func(key string, set func(string) error) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*dst = n
			return err
		}
	}
	floatVar := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			*dst = f
			return err
		}
	}
	boolVar := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			*dst = b
			return err
		}
	}

	str("ASSET_ROOT", &c.AssetRoot)
	str("ARCHIVE", &c.Archive)
	str("DATASET_PATH", &c.DatasetPath)
	str("TRAIN_PATH", &c.TrainPath)
	str("TEST_PATH", &c.TestPath)
	str("MODEL_PATH", &c.ModelPath)
	str("METRICS_PATH", &c.MetricsPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("MODEL_BUCKET", &c.ModelBucket)
	str("MODEL_PREFIX", &c.ModelPrefix)
	str("PROJECT", &c.Project)
	str("BQ_DATASET", &c.Dataset)
	str("NARRATOR_MODEL", &c.NarratorModel)
	str("LABEL", &c.Trainer.Label)

	parse("TEST_FRACTION", floatVar(&c.TestFraction))
	parse("SEED", func(v string) error {
		s, err := strconv.ParseUint(v, 10, 64)
		c.Seed = s
		return err
	})
	parse("NUM_LEAVES", intVar(&c.Trainer.NumLeaves))
	parse("NUM_ITERATIONS", intVar(&c.Trainer.NumIterations))
	parse("MIN_SAMPLES_PER_LEAF", intVar(&c.Trainer.MinSamplesPerLeaf))
	parse("LEARNING_RATE", floatVar(&c.Trainer.LearningRate))
	parse("MAX_BINS", intVar(&c.Trainer.MaxBins))
	parse("NARRATE", boolVar(&c.Narrate))
	parse("WRITE_METRICS", boolVar(&c.WriteMetrics))

	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}
	return c, nil
}

// BindFlags registers command-line flags that override c.
func BindFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.AssetRoot, "assets", c.AssetRoot, "Asset root holding input/ and output/")
	fs.StringVar(&c.Archive, "archive", c.Archive, "Dataset archive path or gs:// URI")
	fs.StringVar(&c.DatasetPath, "dataset", c.DatasetPath, "Extracted dataset CSV path")
	fs.StringVar(&c.TrainPath, "train", c.TrainPath, "Train split CSV path")
	fs.StringVar(&c.TestPath, "test", c.TestPath, "Test split CSV path")
	fs.StringVar(&c.ModelPath, "model", c.ModelPath, "Model archive output path")
	fs.StringVar(&c.MetricsPath, "metrics", c.MetricsPath, "Prometheus textfile output path")
	fs.Float64Var(&c.TestFraction, "test-fraction", c.TestFraction, "Fraction of rows held out for evaluation")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "Split seed")
	fs.IntVar(&c.Trainer.NumLeaves, "leaves", c.Trainer.NumLeaves, "Maximum leaves per tree")
	fs.IntVar(&c.Trainer.NumIterations, "iterations", c.Trainer.NumIterations, "Boosting iterations")
	fs.IntVar(&c.Trainer.MinSamplesPerLeaf, "min-leaf", c.Trainer.MinSamplesPerLeaf, "Minimum rows per leaf")
	fs.Float64Var(&c.Trainer.LearningRate, "learning-rate", c.Trainer.LearningRate, "Shrinkage per tree")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.ModelBucket, "model-bucket", c.ModelBucket, "GCS bucket to publish the model to")
	fs.StringVar(&c.ModelPrefix, "model-prefix", c.ModelPrefix, "Object prefix for published models")
	fs.StringVar(&c.Project, "project", c.Project, "GCP project for the BigQuery run ledger")
	fs.StringVar(&c.Dataset, "bq-dataset", c.Dataset, "BigQuery dataset for the run ledger")
	fs.BoolVar(&c.Narrate, "narrate", c.Narrate, "Ask Gemini for a plain-language summary of the metrics")
	fs.BoolVar(&c.WriteMetrics, "write-metrics", c.WriteMetrics, "Write job metrics as a Prometheus textfile")
}

// Validate checks the configuration after Resolve.
func (c Config) Validate() error {
	var errs []error
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("test fraction %g must be in (0, 1)", c.TestFraction))
	}
	if c.Trainer.Label == "" {
		errs = append(errs, errors.New("label column is required"))
	}
	if c.Trainer.Features == "" {
		errs = append(errs, errors.New("features column is required"))
	}
	if err := c.Trainer.TreeOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Narrate && c.Project == "" {
		errs = append(errs, errors.New("narration requires a GCP project"))
	}
	for name, p := range map[string]string{
		"archive": c.Archive, "dataset": c.DatasetPath, "train": c.TrainPath,
		"test": c.TestPath, "model": c.ModelPath,
	} {
		if p == "" {
			errs = append(errs, fmt.Errorf("%s path is empty", name))
		}
	}
	if c.TrainPath != "" && c.TrainPath == c.TestPath {
		errs = append(errs, errors.New("train and test paths must differ"))
	}
	if c.ModelBucket != "" && strings.HasPrefix(c.ModelBucket, "gs://") {
		errs = append(errs, fmt.Errorf("model bucket %q must be a bare bucket name", c.ModelBucket))
	}
	return errors.Join(errs...)
}

// IsRemoteArchive reports whether the archive lives in Cloud Storage.
func (c Config) IsRemoteArchive() bool {
	return strings.HasPrefix(c.Archive, "gs://")
}
