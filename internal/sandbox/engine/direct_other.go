//go:build !unix

package engine

import "fmt"

// NewDirectEngine needs process groups and is only available on unix.
func NewDirectEngine(cfg Config) (Engine, error) {
	return nil, fmt.Errorf("direct sandbox engine is only supported on unix")
}
