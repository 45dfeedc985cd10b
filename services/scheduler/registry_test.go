package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentplane/services/workitem"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	h := &stubHandler{
		kind: workitem.KindOrder,
		fn: func(ctx context.Context, att Attempt) (Result, error) {
			return Result{}, nil
		},
	}
	require.NoError(t, registry.Register(h))

	got, err := registry.Resolve(workitem.KindOrder)
	require.NoError(t, err)
	require.Equal(t, workitem.KindOrder, got.Kind())

	require.ElementsMatch(t, []workitem.Kind{workitem.KindOrder}, registry.Kinds())
}

func TestRegistryDuplicateKind(t *testing.T) {
	registry := NewRegistry()

	h := &stubHandler{kind: workitem.KindPayment}
	require.NoError(t, registry.Register(h))
	require.Error(t, registry.Register(h))
}

func TestRegistryUnknownKind(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve(workitem.KindSystemCommand)
	require.ErrorIs(t, err, ErrUnknownKind)
}
