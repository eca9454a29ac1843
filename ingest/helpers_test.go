package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/alos2-ingester/common"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	"github.com/airbusgeo/alos2-ingester/interface/jobs"
	"github.com/airbusgeo/alos2-ingester/interface/provider"
	"github.com/airbusgeo/alos2-ingester/productize"
)

const (
	testDatasetL15 = "ALOS2236492900-180918-WBDR1.5RUD"
	testDatasetL11 = "ALOS2236492900-180918-WBDR1.1__D"
)

// fakeProvider writes a file named after the archive in the local directory
type fakeProvider struct {
	err       error
	downloads []common.Archive
}

func (p *fakeProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	p.downloads = append(p.downloads, archive)
	if p.err != nil {
		return "", p.err
	}
	name := archive.Name
	if name == "" {
		name = "archive.zip"
	}
	file := filepath.Join(localDir, name)
	return file, os.WriteFile(file, []byte("PK"), 0644)
}

func (p *fakeProvider) Name() string {
	return "fake"
}

// fakeProductizer creates a product directory per dataset
type fakeProductizer struct {
	outDir   string
	datasets []string
	err      error

	ingested []string // downloadSource of each call to Ingest
	rawDirs  []string
	written  []*productize.Product
}

func (pz *fakeProductizer) newProduct(name string) (*productize.Product, error) {
	p := &productize.Product{
		Name:     name,
		Dir:      filepath.Join(pz.outDir, name),
		Metadata: &productize.Metadata{ProdName: name},
	}
	return p, os.MkdirAll(p.Dir, 0755)
}

func (pz *fakeProductizer) Ingest(ctx context.Context, workdir, downloadSource, pathNumber string) ([]*productize.Product, error) {
	pz.ingested = append(pz.ingested, downloadSource)
	var products []*productize.Product
	for _, name := range pz.datasets {
		p, err := pz.newProduct(name)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, pz.err
}

func (pz *fakeProductizer) Base(ctx context.Context, name, rawDir string) (*productize.Product, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		pz.rawDirs = append(pz.rawDirs, e.Name())
	}
	return pz.newProduct(name)
}

func (pz *fakeProductizer) WriteProduct(p *productize.Product) error {
	pz.written = append(pz.written, p)
	return nil
}

type fakeSearcher struct {
	files   []provider.FileParams
	err     error
	queries []provider.Query
}

func (s *fakeSearcher) Search(ctx context.Context, q provider.Query) ([]provider.FileParams, error) {
	s.queries = append(s.queries, q)
	return s.files, s.err
}

type fakeCatalog map[string]bool

func (c fakeCatalog) Exists(ctx context.Context, id string) (bool, error) {
	return c[id], nil
}

type fakeExporter struct {
	exported []string
	err      error
}

func (e *fakeExporter) Export(ctx context.Context, p *productize.Product) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.exported = append(e.exported, p.Name)
	return "gs://bucket/" + p.Name, nil
}

type fakeSubmitter struct {
	jobs []jobs.Job
	err  error
}

func (s *fakeSubmitter) Submit(ctx context.Context, job jobs.Job) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.jobs = append(s.jobs, job)
	return fmt.Sprintf("job-%d", len(s.jobs)), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, data ...[]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, data...)
	return nil
}

// memLedger is an in-memory ledger recording the status history of the ingestions
type memLedger struct {
	db.LedgerBackend
	statuses map[string][]common.Status
	messages map[string]string
	datasets map[string]db.Dataset
}

func newMemLedger() *memLedger {
	return &memLedger{statuses: map[string][]common.Status{}, messages: map[string]string{}, datasets: map[string]db.Dataset{}}
}

func (l *memLedger) CreateIngestion(ctx context.Context, job common.IngestJob) error {
	if _, ok := l.statuses[job.ID]; ok {
		return db.ErrAlreadyExists{Type: "ingestion", ID: job.ID}
	}
	l.statuses[job.ID] = []common.Status{common.StatusNEW}
	return nil
}

func (l *memLedger) UpdateIngestion(ctx context.Context, id string, status common.Status, message *string) error {
	if _, ok := l.statuses[id]; !ok {
		return db.ErrNotFound{Type: "ingestion", ID: id}
	}
	l.statuses[id] = append(l.statuses[id], status)
	if message != nil {
		l.messages[id] = *message
	}
	return nil
}

func (l *memLedger) SetDataset(ctx context.Context, ds db.Dataset) error {
	if ds.Name == "" {
		return errors.New("empty name")
	}
	l.datasets[ds.Name] = ds
	return nil
}

func (l *memLedger) last(id string) common.Status {
	s := l.statuses[id]
	if len(s) == 0 {
		return -1
	}
	return s[len(s)-1]
}
