package productize

//go:generate go run github.com/dmarkham/enumer -json -type State -trimprefix State

// State of a product in the productization
type State int

const (
	StateNotStarted State = iota
	StateMetadataBuilt
	StateArchiveAssembled
	StatePostprocessed
	StateBrowseMoved
	StateFinalized
)
