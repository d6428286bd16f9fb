package config

const (
	// DefaultDatabasePath is the default path for the SQLite database
	DefaultDatabasePath = "./library.db"

	// DefaultFinePerDay is charged for every whole day a loan is returned late
	DefaultFinePerDay = "0.5"

	DefaultFineCurrency = "USD"

	// Catalog search pagination bounds
	DefaultPageSize = 10
	MaxPageSize     = 100
)
