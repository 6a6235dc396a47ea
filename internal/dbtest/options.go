package dbtest

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
)

// containerOptions prepends a logger writing to tb to opts, so container logs
// show up next to the failing test.
func containerOptions(tb testing.TB, opts ...testcontainers.ContainerCustomizer) []testcontainers.ContainerCustomizer {
	return append([]testcontainers.ContainerCustomizer{testcontainers.WithLogger(log.TestLogger(tb))}, opts...)
}
