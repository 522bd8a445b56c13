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

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type recorder struct {
	events []string
}

func (r *recorder) dep(name string, needs ...string) *Dependency {
	return &Dependency{
		Name:  name,
		Needs: needs,
		StartFn: func(context.Context) error {
			r.events = append(r.events, "start:"+name)
			return nil
		},
		StopFn: func(context.Context) error {
			r.events = append(r.events, "stop:"+name)
			return nil
		},
	}
}

func TestStartup_DependencyOrder(t *testing.T) {
	rec := &recorder{}
	s := NewStartup(noopLogger(), 1)
	s.AddDependency(rec.dep("http", "database", "redis"))
	s.AddDependency(rec.dep("database"))
	s.AddDependency(rec.dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:redis", "start:http"}, rec.events)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	rec.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:http", "stop:redis", "stop:database"}, rec.events)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilHealthy(t *testing.T) {
	calls := 0
	s := NewStartup(noopLogger(), 3)
	s.baseDelay = time.Millisecond
	s.AddDependency(&Dependency{Name: "database", StartFn: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := NewStartup(noopLogger(), 2)
	s.baseDelay = time.Millisecond
	s.AddDependency(&Dependency{Name: "kafka", StartFn: func(context.Context) error {
		return errors.New("no brokers")
	}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("kafka"))
}

func TestStartup_UnknownAndCycle(t *testing.T) {
	s := NewStartup(noopLogger(), 1)
	s.AddDependency(&Dependency{Name: "http", Needs: []string{"cache"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'cache'")

	s = NewStartup(noopLogger(), 1)
	s.AddDependency(&Dependency{Name: "a", Needs: []string{"b"}})
	s.AddDependency(&Dependency{Name: "b", Needs: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}
