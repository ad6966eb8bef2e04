// Package dataset reads and writes the transaction CSV files and converts
// them into frames for the feature pipeline.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/ml"
)

// Dataset is an ordered, read-only sequence of transactions. Operations that
// derive a dataset always return a new slice.
type Dataset []domain.TransactionRecord

// Load reads a comma-separated dataset file with a header row.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.MissingInputError{Path: path, What: "dataset"}
		}
		return nil, fmt.Errorf("Load: open %q: %w", path, err)
	}
	defer f.Close()

	return Read(f, path)
}

// Read parses a dataset from r. name is used in error messages.
func Read(r io.Reader, name string) (Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &domain.SchemaMismatchError{Path: name, Line: 1, Column: -1, Reason: "missing header row"}
	}
	if err != nil {
		return nil, fmt.Errorf("Read: %s: %w", name, err)
	}
	if len(header) != domain.ColumnCount {
		return nil, &domain.SchemaMismatchError{
			Path: name, Line: 1, Column: -1,
			Reason: fmt.Sprintf("header has %d columns, want %d", len(header), domain.ColumnCount),
		}
	}

	var ds Dataset
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Read: %s:%d: %w", name, line, err)
		}
		row, err := parseRecord(rec)
		if err != nil {
			var sm *domain.SchemaMismatchError
			if errors.As(err, &sm) {
				sm.Path, sm.Line = name, line
			}
			return nil, err
		}
		ds = append(ds, row)
	}
	return ds, nil
}

func parseRecord(rec []string) (domain.TransactionRecord, error) {
	var r domain.TransactionRecord
	if len(rec) != domain.ColumnCount {
		return r, &domain.SchemaMismatchError{
			Column: -1,
			Reason: fmt.Sprintf("got %d columns, want %d", len(rec), domain.ColumnCount),
		}
	}

	floats := []struct {
		col int
		dst *float64
	}{
		{domain.ColStep, &r.Step},
		{domain.ColAmount, &r.Amount},
		{domain.ColOldBalanceOrg, &r.OldBalanceOrg},
		{domain.ColNewBalanceOrig, &r.NewBalanceOrig},
		{domain.ColOldBalanceDest, &r.OldBalanceDest},
		{domain.ColNewBalanceDest, &r.NewBalanceDest},
		{domain.ColIsFlaggedFraud, &r.IsFlaggedFraud},
	}
	for _, fl := range floats {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[fl.col]), 64)
		if err != nil {
			return r, &domain.SchemaMismatchError{
				Column: fl.col,
				Reason: fmt.Sprintf("%s: %q is not a number", domain.CSVHeader[fl.col], rec[fl.col]),
			}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r, &domain.SchemaMismatchError{
				Column: fl.col,
				Reason: fmt.Sprintf("%s: %q is not a finite number", domain.CSVHeader[fl.col], rec[fl.col]),
			}
		}
		*fl.dst = v
	}

	fraud, err := strconv.ParseBool(strings.TrimSpace(rec[domain.ColIsFraud]))
	if err != nil {
		return r, &domain.SchemaMismatchError{
			Column: domain.ColIsFraud,
			Reason: fmt.Sprintf("isFraud: %q is not a boolean", rec[domain.ColIsFraud]),
		}
	}
	r.IsFraud = fraud

	r.Type = strings.TrimSpace(rec[domain.ColType])
	r.NameOrigin = strings.TrimSpace(rec[domain.ColNameOrigin])
	r.NameDest = strings.TrimSpace(rec[domain.ColNameDest])
	return r, nil
}

// Write writes ds as CSV with a header row.
func Write(w io.Writer, ds Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.CSVHeader); err != nil {
		return fmt.Errorf("Write: header: %w", err)
	}
	row := make([]string, domain.ColumnCount)
	for i, r := range ds {
		row[domain.ColStep] = formatFloat(r.Step)
		row[domain.ColType] = r.Type
		row[domain.ColAmount] = formatFloat(r.Amount)
		row[domain.ColNameOrigin] = r.NameOrigin
		row[domain.ColOldBalanceOrg] = formatFloat(r.OldBalanceOrg)
		row[domain.ColNewBalanceOrig] = formatFloat(r.NewBalanceOrig)
		row[domain.ColNameDest] = r.NameDest
		row[domain.ColOldBalanceDest] = formatFloat(r.OldBalanceDest)
		row[domain.ColNewBalanceDest] = formatFloat(r.NewBalanceDest)
		row[domain.ColIsFraud] = "0"
		if r.IsFraud {
			row[domain.ColIsFraud] = "1"
		}
		row[domain.ColIsFlaggedFraud] = formatFloat(r.IsFlaggedFraud)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("Write: row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Filter returns up to limit records whose label equals fraud. A negative
// limit returns all of them.
func (d Dataset) Filter(fraud bool, limit int) Dataset {
	var out Dataset
	for _, r := range d {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if r.IsFraud == fraud {
			out = append(out, r)
		}
	}
	return out
}

// FraudCount returns the number of fraudulent records.
func (d Dataset) FraudCount() int {
	n := 0
	for _, r := range d {
		if r.IsFraud {
			n++
		}
	}
	return n
}

// Frame converts the dataset into a columnar frame, one column per field.
func (d Dataset) Frame() (*ml.Frame, error) {
	n := len(d)
	var (
		step, amount, oldOrg, newOrig = make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
		oldDest, newDest, flagged     = make([]float64, n), make([]float64, n), make([]float64, n)
		typ, nameOrig, nameDest       = make([]string, n), make([]string, n), make([]string, n)
		fraud                         = make([]bool, n)
	)
	for i, r := range d {
		step[i] = r.Step
		typ[i] = r.Type
		amount[i] = r.Amount
		nameOrig[i] = r.NameOrigin
		oldOrg[i] = r.OldBalanceOrg
		newOrig[i] = r.NewBalanceOrig
		nameDest[i] = r.NameDest
		oldDest[i] = r.OldBalanceDest
		newDest[i] = r.NewBalanceDest
		fraud[i] = r.IsFraud
		flagged[i] = r.IsFlaggedFraud
	}
	return ml.NewFrame(
		ml.FloatColumn(domain.FieldStep, step),
		ml.StringColumn(domain.FieldType, typ),
		ml.FloatColumn(domain.FieldAmount, amount),
		ml.StringColumn(domain.FieldNameOrigin, nameOrig),
		ml.FloatColumn(domain.FieldOldBalanceOrg, oldOrg),
		ml.FloatColumn(domain.FieldNewBalanceOrig, newOrig),
		ml.StringColumn(domain.FieldNameDest, nameDest),
		ml.FloatColumn(domain.FieldOldBalanceDest, oldDest),
		ml.FloatColumn(domain.FieldNewBalanceDest, newDest),
		ml.BoolColumn(domain.FieldIsFraud, fraud),
		ml.FloatColumn(domain.FieldIsFlaggedFraud, flagged),
	)
}
