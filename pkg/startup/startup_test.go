package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupOrder(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	var started, stopped []string

	dep := func(name string, requires ...string) Func {
		return Func{
			Name:     name,
			Requires: requires,
			OnStart:  func(context.Context) error { started = append(started, name); return nil },
			OnStop:   func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := NewStartup(logger, 1)
	s.AddDependency(dep("http", "queue", "pipeline"))
	s.AddDependency(dep("queue", "database"))
	s.AddDependency(dep("pipeline", "database", "encoder"))
	s.AddDependency(dep("database"))
	s.AddDependency(dep("encoder"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "queue", "encoder", "pipeline", "http"}, started)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"http", "pipeline", "encoder", "queue", "database"}, stopped)
}

func TestStartupRetries(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	attempts := 0

	s := NewStartup(logger, 3)
	s.unit = time.Millisecond
	s.AddDependency(Func{
		Name: "database",
		OnStart: func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StartupStatusStarted, s.Status("database"))
}

func TestStartupGivesUp(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	boom := errors.New("connection refused")

	s := NewStartup(logger, 2)
	s.unit = time.Millisecond
	s.AddDependency(Func{Name: "redis", OnStart: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StartupStatusFailed, s.Status("redis"))
}

func TestStartupUnknownDependency(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s := NewStartup(logger, 1)
	s.AddDependency(Func{Name: "http", Requires: []string{"missing"}})

	assert.Error(t, s.Start(context.Background()))
}
