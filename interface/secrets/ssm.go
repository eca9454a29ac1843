package secrets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/airbusgeo/alos2-ingester/interface/provider"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// Store of secret parameters
type Store interface {
	// Get the value of the parameter. Returns ErrNotFound if the parameter does not exist.
	Get(ctx context.Context, name string) (string, error)
}

type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return "secret not found: " + e.Name
}

// ssmAPI is the subset of the ssm client used by the store
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore reads the (encrypted) parameters of the AWS Systems Manager Parameter Store
type SSMStore struct {
	client ssmAPI
	cache  map[string]string
}

// NewSSMStore creates a store using the default AWS configuration (env, shared config, instance role)
func NewSSMStore(ctx context.Context, region string) (*SSMStore, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewSSMStore: %w", err)
	}
	return &SSMStore{client: ssm.NewFromConfig(cfg), cache: map[string]string{}}, nil
}

// Get implements Store
func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	if v, ok := s.cache[name]; ok {
		return v, nil
	}
	resp, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return "", service.MakeFatal(ErrNotFound{Name: name})
		}
		return "", fmt.Errorf("SSMStore.Get[%s]: %w", name, err)
	}
	if resp.Parameter == nil {
		return "", service.MakeFatal(ErrNotFound{Name: name})
	}
	v := aws.ToString(resp.Parameter.Value)
	s.cache[name] = v
	return v, nil
}

// MapStore is a store backed by a map (e.g. loaded from the environment)
type MapStore map[string]string

// Get implements Store
func (m MapStore) Get(ctx context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", service.MakeFatal(ErrNotFound{Name: name})
}

// PortalCredentials reads the credentials of a portal stored as <prefix>/<portal>/username and <prefix>/<portal>/password
func PortalCredentials(ctx context.Context, store Store, prefix, portal string) (provider.Credentials, error) {
	base := path.Join("/", strings.Trim(prefix, "/"), portal)
	username, err := store.Get(ctx, base+"/username")
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("PortalCredentials[%s]: %w", portal, err)
	}
	password, err := store.Get(ctx, base+"/password")
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("PortalCredentials[%s]: %w", portal, err)
	}
	return provider.Credentials{Username: username, Password: password}, nil
}
