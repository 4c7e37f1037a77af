package directors

import (
	"context"
	"fmt"
	"strings"

	"mddb/src/engine"
	"mddb/src/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// AllOrphans selects every orphan and bastard scan
const AllOrphans = "all"

// CleanupService finds and removes data no project accounts for
type CleanupService struct {
	db       *engine.Database
	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

func NewCleanupService(db *engine.Database, settings *settings.Arguments, logger *zap.SugaredLogger) *CleanupService {
	return &CleanupService{
		db:       db,
		settings: settings,
		logger:   logger,
	}
}

func validOrphanKey(key string) error {
	if key == AllOrphans {
		return nil
	}
	for _, known := range engine.OrphanKeys() {
		if key == known {
			return nil
		}
	}
	return fmt.Errorf("unknown orphan key %q (expected %s or one of %s)", key, AllOrphans, strings.Join(engine.OrphanKeys(), ", "))
}

// FindOrphans returns the orphans found by one scan, or by all of them
func (s *CleanupService) FindOrphans(ctx context.Context, key string) (map[string][]bson.M, error) {
	if err := validOrphanKey(key); err != nil {
		return nil, err
	}
	if key == AllOrphans {
		return s.db.FindAllOrphans(ctx)
	}
	orphans, err := s.db.FindOrphans(ctx, key)
	if err != nil {
		return nil, err
	}
	return map[string][]bson.M{key: orphans}, nil
}

// DeleteOrphans removes the orphans of one scan, or of all of them. Unless
// forced the operator confirms twice per scan.
func (s *CleanupService) DeleteOrphans(ctx context.Context, key string) (int, error) {
	if err := validOrphanKey(key); err != nil {
		return 0, err
	}
	deleted, err := s.db.DeleteOrphanData(ctx, key, s.settings.Force)
	if err != nil {
		return deleted, err
	}
	s.logger.Infof("Deleted %d orphan documents", deleted)
	return deleted, nil
}
