package dig_container

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/dig"

	echoapi "github.com/tesoreria/backend/apps/api/echo"
	"github.com/tesoreria/backend/core/enrollment"
	"github.com/tesoreria/backend/core/student"
)

func TestNew_resolvesServer(t *testing.T) {
	c := New(dig.DryRun(true))

	err := c.Invoke(func(
		_ *echoapi.Server,
		_ student.ServiceInterface,
		_ enrollment.ServiceInterface,
		_ *enrollment.Service,
		_ DBLoggerParam,
		_ StorageCloser,
	) {
	})
	assert.NoError(t, err)
}

func TestVisualize(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Visualize(New(), &buf))
	assert.Contains(t, buf.String(), "digraph")
}
