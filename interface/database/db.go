package db

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
)

// Ingestion is the record of an ingest job in the ledger
type Ingestion struct {
	ID       string           `json:"id"`
	Source   common.Source    `json:"source"`
	Job      common.IngestJob `json:"job"`
	Status   common.Status    `json:"status"`
	Message  string           `json:"message"`
	Retries  int              `json:"retries"`
	Created  time.Time        `json:"created"`
	Updated  time.Time        `json:"updated"`
	Datasets []Dataset        `json:"datasets,omitempty"`
}

// Dataset produced by an ingestion
type Dataset struct {
	Name        string        `json:"name"`
	IngestionID string        `json:"ingestion_id"`
	Status      common.Status `json:"status"`
	Location    string        `json:"location,omitempty"` // where the product has been exported
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type LedgerTxBackend interface {
	LedgerBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type LedgerDBBackend interface {
	LedgerBackend
	StartTransaction(ctx context.Context) (LedgerTxBackend, error)
}

// Status counts the ingestions per status
type Status struct {
	New, Downloading, Productizing, Done, Skipped, Failed, Retry int64
}

// Set the number of occurences for a given status
func (s *Status) Set(status common.Status, nb int64) {
	switch status {
	case common.StatusNEW:
		s.New = nb
	case common.StatusDOWNLOADING:
		s.Downloading = nb
	case common.StatusPRODUCTIZING:
		s.Productizing = nb
	case common.StatusDONE:
		s.Done = nb
	case common.StatusSKIPPED:
		s.Skipped = nb
	case common.StatusFAILED:
		s.Failed = nb
	case common.StatusRETRY:
		s.Retry = nb
	}
}

// Total number of ingestions
func (s Status) Total() int64 {
	return s.New + s.Downloading + s.Productizing + s.Done + s.Skipped + s.Failed + s.Retry
}

type LedgerBackend interface {
	// Create an ingestion with status NEW, may return ErrAlreadyExists
	CreateIngestion(ctx context.Context, job common.IngestJob) error
	// Get the ingestion with the given id and its datasets, may return ErrNotFound
	Ingestion(ctx context.Context, id string) (Ingestion, error)
	// Ingestions returns the list of the ingestions fitting the parameters (without their datasets)
	// pattern [optional=""] id pattern (* and ? wildcards, (?i) suffix for case-insensitivity)
	// source [optional=""] source of the ingestion
	// status [optional=""] status of the ingestion
	Ingestions(ctx context.Context, pattern, source, status string, page, limit int) ([]Ingestion, error)
	// Update ingestion status & message (if != nil). If the status is RETRY, the retries counter is incremented.
	// May return ErrNotFound
	UpdateIngestion(ctx context.Context, id string, status common.Status, message *string) error
	// Delete an ingestion and its datasets
	DeleteIngestion(ctx context.Context, id string) error
	// Returns the status of the ingestions
	IngestionsStatus(ctx context.Context) (Status, error)

	// Add or update the dataset produced by an ingestion
	SetDataset(ctx context.Context, dataset Dataset) error
	// Get the dataset with the given name, may return ErrNotFound
	Dataset(ctx context.Context, name string) (Dataset, error)
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db LedgerDBBackend, f func(tx LedgerTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
