package services

import (
	"fmt"
	"sync"

	"github.com/othello-os/go-othello/internal/kernel"
)

// ServiceFactory provides a centralized way to create and manage the
// services exposed over a booted system
type ServiceFactory struct {
	sys            *kernel.System
	fileService    FileService
	networkService NetworkService
	displayService DisplayService
	mu             sync.RWMutex
	initialized    bool
}

// NewServiceFactory creates a factory over a booted system
func NewServiceFactory(sys *kernel.System) *ServiceFactory {
	return &ServiceFactory{sys: sys}
}

// Initialize initializes all services with their dependencies
func (sf *ServiceFactory) Initialize() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if sf.initialized {
		return nil
	}
	if sf.sys == nil {
		return fmt.Errorf("a booted system is required")
	}

	// The filesystem is always present; the log behind it may not be.
	sf.fileService = NewFileService(sf.sys.FS, sf.sys.Persist, sf.sys.Replayed)

	// The stack exists even on NIC-less machines and fails operations
	// with ErrNoNIC, so the service is always constructed.
	sf.networkService = NewNetworkService(sf.sys.Net)

	sf.displayService = NewDisplayService(sf.sys.Framebuffer)

	sf.initialized = true
	return nil
}

// FileService returns the file service instance
func (sf *ServiceFactory) FileService() (FileService, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		sf.mu.RUnlock()
		if err := sf.Initialize(); err != nil {
			return nil, err
		}
		sf.mu.RLock()
	}

	return sf.fileService, nil
}

// NetworkService returns the network service instance
func (sf *ServiceFactory) NetworkService() (NetworkService, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		sf.mu.RUnlock()
		if err := sf.Initialize(); err != nil {
			return nil, err
		}
		sf.mu.RLock()
	}

	return sf.networkService, nil
}

// DisplayService returns the display service instance
func (sf *ServiceFactory) DisplayService() (DisplayService, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	if !sf.initialized {
		sf.mu.RUnlock()
		if err := sf.Initialize(); err != nil {
			return nil, err
		}
		sf.mu.RLock()
	}

	return sf.displayService, nil
}

// Shutdown flushes pending filesystem mutations and releases the services
func (sf *ServiceFactory) Shutdown() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if !sf.initialized {
		return nil
	}

	// Everything not yet synced would be lost with the machine.
	if sf.sys.Persist != nil && sf.sys.Persist.Enabled() {
		if _, err := sf.sys.Persist.Sync(); err != nil {
			return err
		}
	}

	sf.fileService = nil
	sf.networkService = nil
	sf.displayService = nil
	sf.initialized = false

	return nil
}

// IsInitialized returns whether the factory has been initialized
func (sf *ServiceFactory) IsInitialized() bool {
	sf.mu.RLock()
	defer sf.mu.RUnlock()
	return sf.initialized
}

// ServiceInfo represents information about a service
type ServiceInfo struct {
	Name        string
	Description string
	Available   bool
	Version     string
}

// ListAvailableServices returns information about all services on this
// system. Availability reflects the hardware the boot actually found.
func (sf *ServiceFactory) ListAvailableServices() []ServiceInfo {
	nicPresent := false
	if sf.sys != nil && sf.sys.Net != nil {
		nicPresent = sf.sys.Net.Config().NICPresent
	}
	persistent := sf.sys != nil && sf.sys.Persist != nil && sf.sys.Persist.Enabled()
	displayPresent := sf.sys != nil && sf.sys.Framebuffer != nil

	return []ServiceInfo{
		{
			Name:        "file",
			Description: "Path-based file and directory operations with log-backed persistence",
			Available:   true,
			Version:     "1.0.0",
		},
		{
			Name:        "file.persistence",
			Description: "Durable record log in the disk tail region",
			Available:   persistent,
			Version:     "1.0.0",
		},
		{
			Name:        "network",
			Description: "ARP, DHCP, ICMP echo, DNS lookups and HTTP fetch over the NIC",
			Available:   nicPresent,
			Version:     "1.0.0",
		},
		{
			Name:        "display",
			Description: "Pixel and rectangle drawing on the boot framebuffer",
			Available:   displayPresent,
			Version:     "1.0.0",
		},
	}
}
