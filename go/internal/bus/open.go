package bus

import "fmt"

const (
	DriverNATS   = "nats"
	DriverMemory = "memory"

	defaultMemoryHistory = 1000
)

// Open returns the bus for driver. The memory bus only connects components in the same process.
func Open(driver string, cfg NATSConfig) (Bus, error) {
	switch driver {
	case DriverNATS:
		return NewNATSBus(cfg)
	case DriverMemory:
		return NewMemoryBus(defaultMemoryHistory), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", driver)
	}
}
