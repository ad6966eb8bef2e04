package domain

import (
	"fmt"
	"io"
	"math"

	"github.com/shopspring/decimal"
)

// Column positions of the transaction CSV. The layout is fixed: loading
// assumes exactly these 11 columns after a header row.
const (
	ColStep = iota
	ColType
	ColAmount
	ColNameOrigin
	ColOldBalanceOrg
	ColNewBalanceOrig
	ColNameDest
	ColOldBalanceDest
	ColNewBalanceDest
	ColIsFraud
	ColIsFlaggedFraud

	ColumnCount
)

// CSVHeader is the header row written to and expected in dataset files.
var CSVHeader = []string{
	"step",
	"type",
	"amount",
	"nameOrig",
	"oldbalanceOrg",
	"newbalanceOrig",
	"nameDest",
	"oldbalanceDest",
	"newbalanceDest",
	"isFraud",
	"isFlaggedFraud",
}

// Frame column names used by the feature pipeline.
const (
	FieldStep           = "Step"
	FieldType           = "Type"
	FieldAmount         = "Amount"
	FieldNameOrigin     = "NameOrigin"
	FieldOldBalanceOrg  = "OldBalanceOrg"
	FieldNewBalanceOrig = "NewBalanceOrig"
	FieldNameDest       = "NameDest"
	FieldOldBalanceDest = "OldBalanceDest"
	FieldNewBalanceDest = "NewBalanceDest"
	FieldIsFraud        = "IsFraud"
	FieldIsFlaggedFraud = "IsFlaggedFraud"
)

// FieldNames lists the frame column names in positional order.
var FieldNames = []string{
	FieldStep,
	FieldType,
	FieldAmount,
	FieldNameOrigin,
	FieldOldBalanceOrg,
	FieldNewBalanceOrig,
	FieldNameDest,
	FieldOldBalanceDest,
	FieldNewBalanceDest,
	FieldIsFraud,
	FieldIsFlaggedFraud,
}

// TransactionRecord is one row of the synthetic credit-card dataset.
type TransactionRecord struct {
	Step           float64 // discretized time unit
	Type           string  // e.g. TRANSFER, CASH_OUT
	Amount         float64
	NameOrigin     string // source account, never a feature
	OldBalanceOrg  float64
	NewBalanceOrig float64
	NameDest       string // destination account, never a feature
	OldBalanceDest float64
	NewBalanceDest float64
	IsFraud        bool    // ground-truth label
	IsFlaggedFraud float64 // rule-based flag, never a feature
}

// Dump writes a boxed, human-readable view of the record.
func (r TransactionRecord) Dump(w io.Writer) {
	fmt.Fprintln(w, "*************************************************")
	fmt.Fprintln(w, "*       Row View for Transaction Data")
	fmt.Fprintln(w, "*------------------------------------------------")
	fmt.Fprintf(w, "*       Step:                   %v\n", r.Step)
	fmt.Fprintf(w, "*       Type:                   %s\n", r.Type)
	fmt.Fprintf(w, "*       Amount:                 $%s\n", money(r.Amount))
	fmt.Fprintf(w, "*       NameOrigin:             %s\n", r.NameOrigin)
	fmt.Fprintf(w, "*       OldBalanceOrg:          $%s\n", money(r.OldBalanceOrg))
	fmt.Fprintf(w, "*       NewBalanceOrig:         $%s\n", money(r.NewBalanceOrig))
	fmt.Fprintf(w, "*       NameDest:               %s\n", r.NameDest)
	fmt.Fprintf(w, "*       OldBalanceDest:         $%s\n", money(r.OldBalanceDest))
	fmt.Fprintf(w, "*       NewBalanceDest:         $%s\n", money(r.NewBalanceDest))
	fmt.Fprintf(w, "*       IsFraud:                %t\n", r.IsFraud)
	fmt.Fprintf(w, "*       IsFlaggedFraud:         %v\n", r.IsFlaggedFraud)
	fmt.Fprintln(w, "*************************************************")
}

func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
