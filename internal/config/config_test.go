package config

import (
	"flag"
	"path/filepath"
	"testing"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	c.Resolve()

	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.TestFraction != 0.2 {
		t.Errorf("TestFraction = %v, want 0.2", c.TestFraction)
	}
	if c.Trainer.NumLeaves != 25 || c.Trainer.NumIterations != 225 ||
		c.Trainer.MinSamplesPerLeaf != 20 || c.Trainer.LearningRate != 0.001 {
		t.Errorf("unexpected trainer defaults: %+v", c.Trainer)
	}

	wantPaths := map[string]string{
		c.Archive:     filepath.Join("assets", "input", "SyntheticCreditCardFraud.zip"),
		c.DatasetPath: filepath.Join("assets", "input", "SyntheticCreditCardFraud", "credit-card-data.csv"),
		c.TrainPath:   filepath.Join("assets", "output", "trainData.csv"),
		c.TestPath:    filepath.Join("assets", "output", "testData.csv"),
		c.ModelPath:   filepath.Join("assets", "output", "model.zip"),
	}
	for got, want := range wantPaths {
		if got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := fromLookup(envMap(map[string]string{
		"FRAUD_ASSET_ROOT":    "/data",
		"FRAUD_SEED":          "7",
		"FRAUD_TEST_FRACTION": "0.3",
		"FRAUD_NUM_LEAVES":    "31",
		"FRAUD_NARRATE":       "true",
		"FRAUD_PROJECT":       "my-project",
	}))
	if err != nil {
		t.Fatalf("fromLookup() error = %v", err)
	}
	if c.AssetRoot != "/data" || c.Seed != 7 || c.TestFraction != 0.3 {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.Trainer.NumLeaves != 31 {
		t.Errorf("NumLeaves = %d, want 31", c.Trainer.NumLeaves)
	}
	if !c.Narrate || c.Project != "my-project" {
		t.Errorf("narration settings not applied: %+v", c)
	}

	c.Resolve()
	if want := filepath.Join("/data", "output", "model.zip"); c.ModelPath != want {
		t.Errorf("ModelPath = %q, want %q", c.ModelPath, want)
	}
}

func TestFromEnv_InvalidValues(t *testing.T) {
	_, err := fromLookup(envMap(map[string]string{
		"FRAUD_SEED":          "-1",
		"FRAUD_LEARNING_RATE": "fast",
	}))
	if err == nil {
		t.Fatal("expected error for malformed values")
	}
}

func TestBindFlags(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	BindFlags(fs, &c)

	if err := fs.Parse([]string{"-assets", "/tmp/a", "-iterations", "10", "-archive", "gs://b/data.zip"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c.Resolve()

	if c.Trainer.NumIterations != 10 {
		t.Errorf("NumIterations = %d, want 10", c.Trainer.NumIterations)
	}
	if !c.IsRemoteArchive() {
		t.Error("IsRemoteArchive() = false, want true")
	}
	if want := filepath.Join("/tmp/a", "output", "trainData.csv"); c.TrainPath != want {
		t.Errorf("TrainPath = %q, want %q", c.TrainPath, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fraction zero", func(c *Config) { c.TestFraction = 0 }},
		{"fraction one", func(c *Config) { c.TestFraction = 1 }},
		{"no leaves", func(c *Config) { c.Trainer.NumLeaves = 1 }},
		{"same split paths", func(c *Config) { c.TestPath = c.TrainPath }},
		{"narrate without project", func(c *Config) { c.Narrate = true }},
		{"bucket uri", func(c *Config) { c.ModelBucket = "gs://models" }},
		{"no label", func(c *Config) { c.Trainer.Label = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Resolve()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
