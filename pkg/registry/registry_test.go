package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcmartin/dagrunner/pkg/models"
)

func echo(value string) Strategy {
	return StrategyFunc(func(ctx context.Context, node models.Node, input, execCtx map[string]interface{}) (interface{}, error) {
		return value, nil
	})
}

func TestRegisterAndGetStrategy(t *testing.T) {
	r := New()
	r.Register("log", echo("first"))

	s, err := r.GetStrategy("log")
	require.NoError(t, err)

	out, err := s.Execute(context.Background(), models.Node{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", out)
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := New()
	r.Register("log", echo("first"))
	r.Register("log", echo("second"))

	s, err := r.GetStrategy("log")
	require.NoError(t, err)
	out, _ := s.Execute(context.Background(), models.Node{}, nil, nil)
	assert.Equal(t, "second", out)
}

func TestGetStrategyUnknown(t *testing.T) {
	r := New()

	_, err := r.GetStrategy("teleport")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStrategy))

	var unknown *UnknownStrategyError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "teleport", unknown.Type)
	assert.Equal(t, "no strategy found for node type: 'teleport'", err.Error())
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Register("log", echo("a"))

	_, err := b.GetStrategy("log")
	assert.Error(t, err)
}

func TestTypesSorted(t *testing.T) {
	r := New()
	r.Register("wait", echo(""))
	r.Register("http", echo(""))
	r.Register("log", echo(""))

	assert.Equal(t, []string{"http", "log", "wait"}, r.Types())
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("log", echo("x"))
		}()
		go func() {
			defer wg.Done()
			_, _ = r.GetStrategy("log")
		}()
	}
	wg.Wait()

	_, err := r.GetStrategy("log")
	assert.NoError(t, err)
}
