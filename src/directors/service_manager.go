package directors

import (
	"sync"

	"go.uber.org/zap"
)

// ServiceManager holds the services one command run works with
type ServiceManager struct {
	ProjectService *ProjectService
	CleanupService *CleanupService
	logger         *zap.SugaredLogger
}

// Private instance and mutex for thread safety
var (
	instance *ServiceManager
	once     sync.Once
	mu       sync.RWMutex
)

// GetServiceManager returns the singleton instance of ServiceManager
func GetServiceManager() *ServiceManager {
	mu.RLock()
	defer mu.RUnlock()

	if instance == nil {
		// Callers reaching here before initialization get an empty manager
		return &ServiceManager{}
	}
	return instance
}

// InitServiceManager initializes the ServiceManager singleton with services
func InitServiceManager(projectService *ProjectService, cleanupService *CleanupService, logger *zap.SugaredLogger) *ServiceManager {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		instance = &ServiceManager{
			ProjectService: projectService,
			CleanupService: cleanupService,
			logger:         logger,
		}

		if logger != nil {
			logger.Debug("ServiceManager singleton initialized")
		}
	})

	return instance
}

// ResetServiceManager forgets the wired services so the next InitServiceManager takes effect
func ResetServiceManager() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}
