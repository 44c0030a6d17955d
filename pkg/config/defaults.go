package config

// Table defaults.
const (
	// DefaultTableShards of zero lets atom.New pick 4 x GOMAXPROCS.
	DefaultTableShards   = 0
	DefaultTableCapacity = 0
)

// Bench defaults.
const (
	DefaultBenchWorkers    = 8
	DefaultBenchIterations = 100_000
	DefaultBenchPool       = 100
)

// Export defaults.
const (
	DefaultExportFormat   = FormatJSON
	DefaultExportCompress = false
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = LogFormatText
)

// Telemetry defaults.
const (
	DefaultOTLPInsecure = false
	DefaultSampleRatio  = 1.0
	DefaultTraceVerbose = false
)
