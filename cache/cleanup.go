package cache

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DeleteStale deletes every store in s whose name is not listed in keep.
// All deletions are attempted; the names that were removed are returned
// together with the first deletion error, if any.
func DeleteStale(ctx context.Context, s Storage, keep ...string) ([]string, error) {
	log.Debug("Started deleting stale cache stores")

	names, err := s.Names(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache stores")
	}

	var firstErr error
	deleted := []string{}
	for _, name := range names {
		if inStringSlice(keep, name) {
			continue
		}
		ok, err := s.Delete(ctx, name)
		if err != nil {
			log.Errorf("Failed to delete cache store %s: %s", name, err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to delete cache store %s", name)
			}
			continue
		}
		if ok {
			log.Debugf("Deleted stale cache store %s", name)
			deleted = append(deleted, name)
		}
	}

	log.Debug("Finished deleting stale cache stores")

	return deleted, firstErr
}
