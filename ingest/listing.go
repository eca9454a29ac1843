package ingest

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// WriteCSV writes the records (a slice of structs with csv tags, e.g. provider.FileParams or ScrapeTarget) into path
func WriteCSV(path string, records interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	if err := gocsv.MarshalFile(records, f); err != nil {
		f.Close()
		return fmt.Errorf("WriteCSV: %w", err)
	}
	return f.Close()
}

// ReadCSV reads the records of path into out (a pointer to a slice of structs with csv tags)
func ReadCSV(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ReadCSV: %w", err)
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("ReadCSV: %w", err)
	}
	return nil
}
