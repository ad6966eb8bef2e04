// Package split partitions a dataset into train and test files.
package split

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/logger"
)

// Outcome reports whether Prepare wrote new files.
type Outcome string

const (
	// OutcomeReady means both files were (re)written.
	OutcomeReady Outcome = "ready"
	// OutcomeSkipped means fresh files already existed and nothing was written.
	OutcomeSkipped Outcome = "skipped"
)

// Split assigns round(len(ds)*fraction) rows to test and the rest to train,
// chosen by a permutation seeded with seed. Both subsets keep source order.
func Split(ds dataset.Dataset, fraction float64, seed uint64) (train, test dataset.Dataset, err error) {
	if fraction < 0 || fraction > 1 || math.IsNaN(fraction) {
		return nil, nil, fmt.Errorf("Split: test fraction %g outside [0, 1]", fraction)
	}
	n := len(ds)
	nTest := int(math.Round(float64(n) * fraction))

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)
	inTest := make([]bool, n)
	for _, i := range perm[:nTest] {
		inTest[i] = true
	}

	train = make(dataset.Dataset, 0, n-nTest)
	test = make(dataset.Dataset, 0, nTest)
	for i, r := range ds {
		if inTest[i] {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	return train, test, nil
}

// Options configures Prepare.
type Options struct {
	Source    string
	TrainPath string
	TestPath  string
	Fraction  float64
	Seed      uint64
}

// Result is returned by Prepare. Train and Test are only set when the split
// was computed in this call.
type Result struct {
	Outcome Outcome
	Train   dataset.Dataset
	Test    dataset.Dataset
}

// Prepare makes sure fresh train and test files exist. Existing outputs are
// reused only when both are present and neither is older than the source;
// otherwise the source is split again and both files are replaced. The
// outputs are always written as a pair: on failure neither is left behind.
func Prepare(ctx context.Context, opts Options) (Result, error) {
	log := logger.FromContext(ctx)

	fresh, err := outputsFresh(opts)
	if err != nil {
		return Result{}, err
	}
	if fresh {
		log.Info().
			Str("train", opts.TrainPath).
			Str("test", opts.TestPath).
			Msg("Train/test split already prepared, skipping")
		return Result{Outcome: OutcomeSkipped}, nil
	}

	ds, err := dataset.Load(opts.Source)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	train, test, err := Split(ds, opts.Fraction, opts.Seed)
	if err != nil {
		return Result{}, err
	}
	if err := writePair(opts.TrainPath, train, opts.TestPath, test); err != nil {
		return Result{}, err
	}

	log.Info().
		Int("rows", len(ds)).
		Int("train_rows", len(train)).
		Int("test_rows", len(test)).
		Float64("test_fraction", opts.Fraction).
		Msg("Prepared train/test split")
	return Result{Outcome: OutcomeReady, Train: train, Test: test}, nil
}

func outputsFresh(opts Options) (bool, error) {
	trainInfo, trainErr := os.Stat(opts.TrainPath)
	testInfo, testErr := os.Stat(opts.TestPath)
	if trainErr != nil || testErr != nil {
		for _, err := range []error{trainErr, testErr} {
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return false, fmt.Errorf("outputsFresh: %w", err)
			}
		}
		return false, nil
	}

	srcInfo, err := os.Stat(opts.Source)
	if err != nil {
		// No source to compare against: the cached pair is all there is.
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("outputsFresh: %w", err)
	}
	src := srcInfo.ModTime()
	return !trainInfo.ModTime().Before(src) && !testInfo.ModTime().Before(src), nil
}

// writePair writes both datasets to temporary files next to their targets and
// renames them into place. If the second rename fails the first target is
// removed again.
func writePair(trainPath string, train dataset.Dataset, testPath string, test dataset.Dataset) (err error) {
	trainTmp, err := writeTemp(trainPath, train)
	if err != nil {
		return err
	}
	defer os.Remove(trainTmp)

	testTmp, err := writeTemp(testPath, test)
	if err != nil {
		return err
	}
	defer os.Remove(testTmp)

	if err := os.Rename(trainTmp, trainPath); err != nil {
		return fmt.Errorf("writePair: rename %q: %w", trainPath, err)
	}
	if err := os.Rename(testTmp, testPath); err != nil {
		os.Remove(trainPath)
		return fmt.Errorf("writePair: rename %q: %w", testPath, err)
	}
	return nil
}

func writeTemp(target string, ds dataset.Dataset) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("writeTemp: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("writeTemp: %w", err)
	}
	name := f.Name()
	if err := dataset.Write(f, ds); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("writeTemp: %q: %w", target, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("writeTemp: sync %q: %w", target, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("writeTemp: close %q: %w", target, err)
	}
	return name, nil
}
