package pipeline_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/fraud-detection/internal/config"
	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/split"
	"github.com/klauspost/compress/zip"
)

// fixtureDataset returns ten transactions, the first two fraudulent.
func fixtureDataset() dataset.Dataset {
	ds := make(dataset.Dataset, 10)
	for i := range ds {
		fraud := i < 2
		typ := "PAYMENT"
		if i%2 == 1 {
			typ = "TRANSFER"
		}
		amount := float64(100 + 10*i)
		if fraud {
			amount = float64(9000 + 500*i)
		}
		ds[i] = domain.TransactionRecord{
			Step:           float64(i + 1),
			Type:           typ,
			Amount:         amount,
			NameOrigin:     "C10" + string(rune('0'+i)),
			OldBalanceOrg:  amount,
			NewBalanceOrig: 0,
			NameDest:       "M20" + string(rune('0'+i)),
			OldBalanceDest: float64(50 * i),
			NewBalanceDest: float64(50*i) + amount,
			IsFraud:        fraud,
		}
	}
	return ds
}

// balancedSeed finds a split seed that puts one fraud and one legitimate
// row into the test split of ds.
func balancedSeed(t *testing.T, ds dataset.Dataset, fraction float64) uint64 {
	t.Helper()
	for seed := uint64(1); seed <= 100; seed++ {
		_, test, err := split.Split(ds, fraction, seed)
		if err != nil {
			t.Fatal(err)
		}
		if len(test) == 2 && test.FraudCount() == 1 {
			return seed
		}
	}
	t.Fatal("no seed yields a balanced test split")
	return 0
}

// zipDataset returns a zip archive holding ds as credit-card-data.csv.
func zipDataset(t *testing.T, ds dataset.Dataset) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("credit-card-data.csv")
	if err != nil {
		t.Fatal(err)
	}
	if err := dataset.Write(w, ds); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// testConfig returns a resolved configuration below a fresh asset root with
// trainer settings small enough for the fixture.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.AssetRoot = t.TempDir()
	cfg.Trainer.NumIterations = 20
	cfg.Trainer.MinSamplesPerLeaf = 1
	cfg.Trainer.NumLeaves = 4
	cfg.Trainer.LearningRate = 0.1
	cfg.Resolve()
	return cfg
}

func writeArchive(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// MockStorageService is a hand-written gcsuploader.StorageService.
type MockStorageService struct {
	DownloadToFileFunc func(ctx context.Context, gcsURI, dst string) (int64, error)
	UploadFileFunc     func(ctx context.Context, bucketName, objectName, filePath string) error
}

func (m *MockStorageService) DownloadToFile(ctx context.Context, gcsURI, dst string) (int64, error) {
	if m.DownloadToFileFunc != nil {
		return m.DownloadToFileFunc(ctx, gcsURI, dst)
	}
	return 0, nil
}

func (m *MockStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
	}
	return nil
}
