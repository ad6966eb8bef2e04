package pipeline

// Column names produced by the feature pipeline.
const (
	// FeaturesColumn holds the concatenated numeric features.
	FeaturesColumn = "Features"

	// TypeOneHotColumn holds the one-hot encoding of the transaction type.
	TypeOneHotColumn = "TypeOneHotEncoded"

	// IdPreservationColumn is an internal row-id column some loaders add. It
	// is never a feature.
	IdPreservationColumn = "IdPreservationColumn"
)

// TrainerName describes the classifier in reports and the run ledger.
const TrainerName = "BoostedTreeClassifier"

// Console output sizes.
const (
	peekRows          = 5
	oneHotPrintRows   = 10
	inspectRecordRows = 4
)
