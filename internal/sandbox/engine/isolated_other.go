//go:build !linux

package engine

import "fmt"

// NewIsolatedEngine is only available on linux.
func NewIsolatedEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return nil, fmt.Errorf("isolated sandbox engine is only supported on linux")
}
