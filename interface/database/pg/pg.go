package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/airbusgeo/alos2-ingester/common"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	"github.com/lib/pq"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements LedgerTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements LedgerDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements LedgerBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements LedgerDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.LedgerTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sql.ping: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// CreateIngestion implements LedgerBackend
func (b Backend) CreateIngestion(ctx context.Context, job common.IngestJob) error {
	_, err := b.ExecContext(ctx, "insert into ingestion(id, source, job, status) values($1,$2,$3,$4)",
		job.ID, job.Source, job, common.StatusNEW)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "ingestion", ID: job.ID}
	default:
		return fmt.Errorf("CreateIngestion.exec: %w", err)
	}
}

// Ingestion implements LedgerBackend
func (b Backend) Ingestion(ctx context.Context, id string) (db.Ingestion, error) {
	ing := db.Ingestion{ID: id}
	err := b.QueryRowContext(ctx, "select source, job, status, message, retries, created, updated from ingestion where id=$1", id).Scan(
		&ing.Source, &ing.Job, &ing.Status, &ing.Message, &ing.Retries, &ing.Created, &ing.Updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return ing, db.ErrNotFound{Type: "ingestion", ID: id}
		}
		return ing, fmt.Errorf("Ingestion.Scan: %w", err)
	}

	rows, err := b.QueryContext(ctx, "select name, status, location from dataset where ingestion_id=$1 ORDER BY name", id)
	if err != nil {
		return ing, fmt.Errorf("Ingestion.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		ds := db.Dataset{IngestionID: id}
		if err := rows.Scan(&ds.Name, &ds.Status, &ds.Location); err != nil {
			return ing, fmt.Errorf("Ingestion.Scan: %w", err)
		}
		ing.Datasets = append(ing.Datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return ing, fmt.Errorf("Ingestion.rows.err: %w", err)
	}
	return ing, nil
}

// Ingestions implements LedgerBackend
func (b Backend) Ingestions(ctx context.Context, pattern, source, status string, page, limit int) ([]db.Ingestion, error) {
	where := whereClause{}
	if pattern != "" {
		where.match("id", pattern)
	}
	if source != "" {
		where.equal("source", source)
	}
	if status != "" {
		s, err := common.StatusString(status)
		if err != nil {
			return nil, fmt.Errorf("Ingestions: %w", err)
		}
		where.equal("status", s)
	}
	query := "select id, source, job, status, message, retries, created, updated from ingestion" +
		where.String() + " ORDER BY created, id" + pagination(page, limit)

	rows, err := b.QueryContext(ctx, query, where.params...)
	if err != nil {
		return nil, fmt.Errorf("Ingestions.QueryContext: %w", err)
	}
	defer rows.Close()
	ingestions := []db.Ingestion{}
	for rows.Next() {
		var ing db.Ingestion
		if err := rows.Scan(&ing.ID, &ing.Source, &ing.Job, &ing.Status, &ing.Message, &ing.Retries, &ing.Created, &ing.Updated); err != nil {
			return nil, fmt.Errorf("Ingestions.Scan: %w", err)
		}
		ingestions = append(ingestions, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Ingestions.rows.err: %w", err)
	}
	return ingestions, nil
}

// UpdateIngestion implements LedgerBackend
func (b Backend) UpdateIngestion(ctx context.Context, id string, status common.Status, message *string) error {
	retry := 0
	if status == common.StatusRETRY {
		retry = 1
	}
	var (
		res sql.Result
		err error
	)
	if message != nil {
		res, err = b.ExecContext(ctx, "update ingestion set status=$1, message=$2, retries=retries+$3, updated=now() where id=$4", status, *message, retry, id)
	} else {
		res, err = b.ExecContext(ctx, "update ingestion set status=$1, retries=retries+$2, updated=now() where id=$3", status, retry, id)
	}
	if err != nil {
		return fmt.Errorf("UpdateIngestion.exec: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound{Type: "ingestion", ID: id}
	}
	return nil
}

// DeleteIngestion implements LedgerBackend
func (b Backend) DeleteIngestion(ctx context.Context, id string) error {
	if _, err := b.ExecContext(ctx, "delete from ingestion where id=$1", id); err != nil {
		return fmt.Errorf("DeleteIngestion.exec: %w", err)
	}
	return nil
}

// IngestionsStatus implements LedgerBackend
func (b Backend) IngestionsStatus(ctx context.Context) (db.Status, error) {
	status := db.Status{}
	rows, err := b.QueryContext(ctx, "select status, count(*) from ingestion GROUP BY status")
	if err != nil {
		return status, fmt.Errorf("IngestionsStatus.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s common.Status
		var nb int64
		if err := rows.Scan(&s, &nb); err != nil {
			return status, fmt.Errorf("IngestionsStatus.Scan: %w", err)
		}
		status.Set(s, nb)
	}
	if err := rows.Err(); err != nil {
		return status, fmt.Errorf("IngestionsStatus.rows.err: %w", err)
	}
	return status, nil
}

// SetDataset implements LedgerBackend
func (b Backend) SetDataset(ctx context.Context, dataset db.Dataset) error {
	_, err := b.ExecContext(ctx, `insert into dataset(name, ingestion_id, status, location) values($1,$2,$3,$4)
		ON CONFLICT (name) DO UPDATE SET ingestion_id=EXCLUDED.ingestion_id, status=EXCLUDED.status, location=EXCLUDED.location`,
		dataset.Name, dataset.IngestionID, dataset.Status, dataset.Location)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case foreignKeyViolation:
		return db.ErrNotFound{Type: "ingestion", ID: dataset.IngestionID}
	default:
		return fmt.Errorf("SetDataset.exec: %w", err)
	}
}

// Dataset implements LedgerBackend
func (b Backend) Dataset(ctx context.Context, name string) (db.Dataset, error) {
	ds := db.Dataset{Name: name}
	err := b.QueryRowContext(ctx, "select ingestion_id, status, location from dataset where name=$1", name).Scan(&ds.IngestionID, &ds.Status, &ds.Location)
	if err != nil {
		if err == sql.ErrNoRows {
			return ds, db.ErrNotFound{Type: "dataset", ID: name}
		}
		return ds, fmt.Errorf("Dataset.Scan: %w", err)
	}
	return ds, nil
}
