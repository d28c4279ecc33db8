package registration

import (
	"context"
	"errors"

	"enrollsync/pkg/domain"
	"enrollsync/pkg/platform/sentinel"
)

// Located is a record plus the deployment it was found in.
type Located struct {
	Record *Record
	Origin Origin
}

// Locator resolves a registration id against both deployments, probing the
// local store before the remote one.
type Locator struct {
	local        Store
	localOrigin  Origin
	remote       Store
	remoteOrigin Origin
}

// NewLocator builds a locator that prefers the given local store.
func NewLocator(local Store, localOrigin Origin, remote Store, remoteOrigin Origin) *Locator {
	return &Locator{
		local:        local,
		localOrigin:  localOrigin,
		remote:       remote,
		remoteOrigin: remoteOrigin,
	}
}

// Locate returns the first match with its origin. A miss in both stores
// returns sentinel.ErrNotFound: the record may have been deleted between
// event emission and processing, which is recoverable, not fatal.
func (l *Locator) Locate(ctx context.Context, id domain.RegistrationID) (*Located, error) {
	rec, err := l.local.Get(ctx, id)
	if err == nil {
		return &Located{Record: rec, Origin: l.localOrigin}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	rec, err = l.remote.Get(ctx, id)
	if err == nil {
		return &Located{Record: rec, Origin: l.remoteOrigin}, nil
	}
	return nil, err
}
