package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/interface/catalog/grq"
	"github.com/airbusgeo/alos2-ingester/interface/database/pg"
	"github.com/airbusgeo/alos2-ingester/interface/jobs"
	"github.com/airbusgeo/alos2-ingester/interface/provider"
	"github.com/airbusgeo/alos2-ingester/interface/secrets"
	"github.com/airbusgeo/alos2-ingester/interface/shared"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
)

// Names of the portals in the secret store
const (
	PortalAUIG2        = "auig2"
	PortalSentinelAsia = "sentinelasia"
	PortalGPortal      = "gportal"
)

// Credentials returns the credentials of the portal defined in the configuration,
// or read in the AWS SSM Parameter Store if they are not defined and a prefix is configured
func (c Config) Credentials(ctx context.Context, store secrets.Store, portal string) (provider.Credentials, error) {
	var creds provider.Credentials
	switch portal {
	case PortalAUIG2:
		creds = provider.Credentials{Username: c.Portals.AUIG2Username, Password: c.Portals.AUIG2Password}
	case PortalSentinelAsia:
		creds = provider.Credentials{Username: c.Portals.SentinelAsiaUsername, Password: c.Portals.SentinelAsiaPassword}
	case PortalGPortal:
		creds = provider.Credentials{Username: c.Portals.GPortalUsername, Password: c.Portals.GPortalPassword}
	default:
		return creds, fmt.Errorf("unknown portal %s", portal)
	}
	if creds.Username != "" || store == nil || c.Portals.SSMPrefix == "" {
		return creds, nil
	}
	return secrets.PortalCredentials(ctx, store, c.Portals.SSMPrefix, portal)
}

// SecretStore returns the AWS SSM store if a prefix is configured, nil otherwise
func (c Config) SecretStore(ctx context.Context) (secrets.Store, error) {
	if c.Portals.SSMPrefix == "" {
		return nil, nil
	}
	store, err := secrets.NewSSMStore(ctx, c.Portals.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("SecretStore: %w", err)
	}
	return store, nil
}

// NewPublisher returns a publisher on the queue (pgqueue if a connection is configured, pubsub otherwise)
func (c Config) NewPublisher(ctx context.Context, queue string) (messaging.Publisher, func(), error) {
	if c.Jobs.PgqConnection != "" {
		_, w, err := pgqueue.SqlConnect(ctx, c.Jobs.PgqConnection)
		if err != nil {
			return nil, nil, fmt.Errorf("MessagingService: %w", err)
		}
		return pgqueue.NewPublisher(w, queue, pgqueue.WithMaxRetries(5)), func() {}, nil
	}
	publisher, err := pubsub.NewPublisher(ctx, c.Jobs.PsProject, queue, pubsub.WithMaxRetries(5))
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub.NewPublisher: %w", err)
	}
	return publisher, publisher.Stop, nil
}

// NewConsumer returns a consumer of the queue (pgqueue if a connection is configured, pubsub otherwise)
func (c Config) NewConsumer(ctx context.Context, queue string) (messaging.Consumer, func(), error) {
	if c.Jobs.PgqConnection != "" {
		db, _, err := pgqueue.SqlConnect(ctx, c.Jobs.PgqConnection)
		if err != nil {
			return nil, nil, fmt.Errorf("MessagingService: %w", err)
		}
		consumer := pgqueue.NewConsumer(db, queue)
		return consumer, consumer.Stop, nil
	}
	consumer, err := pubsub.NewConsumer(c.Jobs.PsProject, queue)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub.NewConsumer: %w", err)
	}
	return consumer, func() {}, nil
}

// NewSubmitter returns the submitter of the jobs of the given source: Mozart if configured, the job queue otherwise.
// Returns nil if none is configured.
func (c Config) NewSubmitter(ctx context.Context, source common.Source) (jobs.Submitter, func(), error) {
	if c.Jobs.MozartURL != "" {
		httpClient := shared.NewHTTPClient(ctx, shared.OAuth2Config{
			TokenURL:     c.Jobs.OAuth2URL,
			ClientID:     c.Jobs.ClientID,
			ClientSecret: c.Jobs.ClientSecret,
		}, c.Portals.Timeout, c.Catalog.Insecure)
		return jobs.NewMozartSubmitter(c.Jobs.MozartURL, httpClient), func() {}, nil
	}
	if c.Jobs.Topic != "" {
		publisher, stop, err := c.NewPublisher(ctx, c.Jobs.Topic)
		if err != nil {
			return nil, nil, err
		}
		return jobs.NewQueueSubmitter(publisher, source), stop, nil
	}
	return nil, func() {}, nil
}

// NewProviders creates the image providers of all the sources but md.
// The Sentinel-Asia client is also returned to search the files of the portal.
func (c Config) NewProviders(ctx context.Context) (map[common.Source]provider.ImageProvider, *provider.SentinelAsiaClient, error) {
	store, err := c.SecretStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	creds := map[string]provider.Credentials{}
	for _, portal := range []string{PortalAUIG2, PortalSentinelAsia, PortalGPortal} {
		if creds[portal], err = c.Credentials(ctx, store, portal); err != nil {
			// a missing secret only disables the portal
			if !service.Fatal(err) {
				return nil, nil, err
			}
			log.Logger(ctx).Sugar().Warnf("%s disabled: %v", portal, err)
		}
	}
	auig2 := provider.NewAUIG2ImageProvider(creds[PortalAUIG2])
	auig2.Timeout = c.Portals.Timeout
	gportal := provider.NewGPortalImageProvider(creds[PortalGPortal])
	gportal.Timeout = c.Portals.Timeout
	sentinelAsia := provider.NewSentinelAsiaClient(creds[PortalSentinelAsia])
	sentinelAsia.Timeout = c.Portals.Timeout
	if strings.EqualFold(c.Portals.SentinelAsiaLogin, "optemis") {
		sentinelAsia.Auth = provider.NewOptemisLogin()
	}
	return map[common.Source]provider.ImageProvider{
		common.SourceURL:          provider.NewURLImageProvider(),
		common.SourceAUIG2:        auig2,
		common.SourceGPortal:      gportal,
		common.SourceSentinelAsia: sentinelAsia,
	}, sentinelAsia, nil
}

// NewDriver creates the driver of the ingestion with all the components configured.
// The returned function releases the resources of the driver.
func (c Config) NewDriver(ctx context.Context) (*Driver, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Driver, func(), error) {
		closeAll()
		return nil, nil, fmt.Errorf("NewDriver: %w", err)
	}

	pz, err := c.NewProductizer(ctx)
	if err != nil {
		return fail(err)
	}
	d := &Driver{
		Productizer:  pz,
		WorkDir:      c.WorkDir,
		JobType:      DefaultJobType,
		JobTag:       c.Jobs.Tag,
		JobQueue:     c.Jobs.Queue,
		KeepProducts: c.Export.KeepProducts,
		Probe:        provider.ProbeDatasetNames,
	}

	providers, sentinelAsia, err := c.NewProviders(ctx)
	if err != nil {
		return fail(err)
	}
	d.Providers = providers
	d.Searcher = sentinelAsia

	// Catalog
	if c.Catalog.URL != "" {
		httpClient := shared.NewHTTPClient(ctx, shared.OAuth2Config{
			TokenURL:     c.Jobs.OAuth2URL,
			ClientID:     c.Jobs.ClientID,
			ClientSecret: c.Jobs.ClientSecret,
		}, c.Portals.Timeout, c.Catalog.Insecure)
		d.Catalog = grq.NewClient(c.Catalog.URL, c.Catalog.Index, httpClient)
	}

	// Ledger
	if c.DBConnection != "" {
		if d.Ledger, err = pg.New(ctx, c.DBConnection); err != nil {
			return fail(fmt.Errorf("pg.New: %w", err))
		}
	}

	// Fan-out of the Sentinel-Asia jobs
	submitter, stop, err := c.NewSubmitter(ctx, common.SourceSentinelAsia)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, stop)
	d.Submitter = submitter

	// Exports
	if c.Export.StorageURI != "" {
		ss, err := service.NewStorageStrategy(ctx, c.Export.StorageURI, c.Export.Concurrency)
		if err != nil {
			return fail(fmt.Errorf("storage %s: %w", c.Export.StorageURI, err))
		}
		d.Exporters = append(d.Exporters, StorageExporter{Storage: ss})
	}
	if c.Export.IngestScript != "" {
		runner, err := c.NewRunner(ctx)
		if err != nil {
			return fail(err)
		}
		d.Exporters = append(d.Exporters, ScriptExporter{Runner: runner, Script: c.Export.IngestScript, DatasetsFile: c.Export.DatasetsFile})
	}
	return d, closeAll, nil
}
