package provider

import (
	"context"
	"fmt"

	"github.com/airbusgeo/alos2-ingester/common"
)

// ImageProvider is the interface of an image download service
type ImageProvider interface {
	// Download the archive to the given localDir and returns the path of the downloaded file
	// localDir is the directory where the archive will be stored
	Download(ctx context.Context, archive common.Archive, localDir string) (string, error)

	// Name of the provider
	Name() string
}

// Credentials to log in a portal
type Credentials struct {
	Username string
	Password string
}

// ErrAuthentication is returned when the login to a portal failed (always fatal)
type ErrAuthentication struct {
	Portal string
	Reason string
}

func (e ErrAuthentication) Error() string {
	return fmt.Sprintf("authentication to %s failed: %s", e.Portal, e.Reason)
}

// Fatal implements service.errFatalIf
func (e ErrAuthentication) Fatal() bool {
	return true
}
