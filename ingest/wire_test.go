package ingest

import (
	"context"
	"testing"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/interface/jobs"
	"github.com/airbusgeo/alos2-ingester/interface/provider"
	"github.com/airbusgeo/alos2-ingester/interface/secrets"
	"github.com/airbusgeo/alos2-ingester/service"
)

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	store := secrets.MapStore{
		"/alos2/portals/gportal/username":      "guser",
		"/alos2/portals/gportal/password":      "gpass",
		"/alos2/portals/sentinelasia/username": "suser",
	}
	cfg := Config{Portals: PortalsConfig{AUIG2Username: "auser", AUIG2Password: "apass", SSMPrefix: "alos2/portals/"}}

	creds, err := cfg.Credentials(ctx, store, PortalAUIG2)
	if err != nil || creds != (provider.Credentials{Username: "auser", Password: "apass"}) {
		t.Errorf("environment credentials expected, got %+v, %v", creds, err)
	}
	creds, err = cfg.Credentials(ctx, store, PortalGPortal)
	if err != nil || creds != (provider.Credentials{Username: "guser", Password: "gpass"}) {
		t.Errorf("stored credentials expected, got %+v, %v", creds, err)
	}
	if _, err = cfg.Credentials(ctx, store, PortalSentinelAsia); !service.Fatal(err) {
		t.Errorf("missing password: fatal error expected, got %v", err)
	}
	if _, err = cfg.Credentials(ctx, store, "unknown"); err == nil {
		t.Error("unknown portal: error expected")
	}

	cfg.Portals.SSMPrefix = ""
	if creds, err = cfg.Credentials(ctx, store, PortalGPortal); err != nil || creds != (provider.Credentials{}) {
		t.Errorf("no prefix: empty credentials expected, got %+v, %v", creds, err)
	}
}

func TestNewSubmitter(t *testing.T) {
	ctx := context.Background()
	submitter, stop, err := Config{}.NewSubmitter(ctx, common.SourceMetadata)
	if err != nil {
		t.Fatal(err)
	}
	stop()
	if submitter != nil {
		t.Errorf("no submitter expected, got %T", submitter)
	}

	submitter, stop, err = Config{Jobs: JobsConfig{MozartURL: "https://mozart/mozart"}}.NewSubmitter(ctx, common.SourceMetadata)
	if err != nil {
		t.Fatal(err)
	}
	stop()
	if m, ok := submitter.(*jobs.MozartSubmitter); !ok || m.URL != "https://mozart/mozart" {
		t.Errorf("mozart submitter expected, got %#v", submitter)
	}
}

func TestNewProviders(t *testing.T) {
	cfg := Config{Portals: PortalsConfig{SentinelAsiaLogin: "optemis", GPortalUsername: "guser"}}
	providers, sentinelAsia, err := cfg.NewProviders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range []common.Source{common.SourceURL, common.SourceAUIG2, common.SourceGPortal, common.SourceSentinelAsia} {
		if providers[src] == nil {
			t.Errorf("missing provider %s", src)
		}
	}
	if _, ok := providers[common.SourceMetadata]; ok {
		t.Error("no provider expected for md jobs")
	}
	if _, ok := sentinelAsia.Auth.(provider.OptemisLogin); !ok {
		t.Errorf("optemis login expected, got %T", sentinelAsia.Auth)
	}
	if gp := providers[common.SourceGPortal].(*provider.GPortalImageProvider); gp.Credentials.Username != "guser" {
		t.Errorf("unexpected gportal credentials: %+v", gp.Credentials)
	}
}
