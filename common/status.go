package common

//go:generate go run github.com/dmarkham/enumer -json -sql -type Status -trimprefix Status

// Status of an ingestion in the ledger
type Status int

const (
	StatusNEW Status = iota
	StatusDOWNLOADING
	StatusPRODUCTIZING
	StatusDONE
	StatusSKIPPED // already in the catalog
	StatusFAILED
	StatusRETRY
)

// Final returns true if the ingestion will not be processed anymore
func (s Status) Final() bool {
	switch s {
	case StatusDONE, StatusSKIPPED, StatusFAILED:
		return true
	}
	return false
}
