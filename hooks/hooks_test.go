package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	name   string
	order  *[]string
	failOn string
}

func (p *recordingProvider) OnBeforeInvocation(ctx context.Context, e *BeforeInvocationEvent) error {
	*p.order = append(*p.order, p.name)
	if p.failOn == "before" {
		return errors.New(p.name + " failed")
	}
	return nil
}

func (p *recordingProvider) OnAfterInvocation(ctx context.Context, e *AfterInvocationEvent) error {
	*p.order = append(*p.order, p.name)
	return nil
}

func TestDispatch_InvokesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.AddHook(&recordingProvider{name: "a", order: &order})
	r.AddHook(&recordingProvider{name: "b", order: &order})
	r.AddHook(&recordingProvider{name: "c", order: &order})

	err := Dispatch(context.Background(), r, &BeforeInvocationEvent{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.AddHook(&recordingProvider{name: "a", order: &order})
	r.AddHook(&recordingProvider{name: "b", order: &order, failOn: "before"})
	r.AddHook(&recordingProvider{name: "c", order: &order})

	err := Dispatch(context.Background(), r, &BeforeInvocationEvent{})
	require.Error(t, err)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestDispatch_IgnoresProvidersNotImplementingHook(t *testing.T) {
	r := NewRegistry()
	r.AddHook(struct{}{})
	err := Dispatch(context.Background(), r, &BeforeInvocationEvent{})
	require.NoError(t, err)
}

func TestDispatch_NilRegistryIsNoOp(t *testing.T) {
	err := Dispatch(context.Background(), nil, &BeforeInvocationEvent{})
	require.NoError(t, err)
}

func TestRegistration_CloseRemovesProvider(t *testing.T) {
	r := NewRegistry()
	var order []string
	reg := r.AddHook(&recordingProvider{name: "a", order: &order})
	r.AddHook(&recordingProvider{name: "b", order: &order})

	require.NoError(t, reg.Close())
	err := Dispatch(context.Background(), r, &BeforeInvocationEvent{})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, order)
}

func TestRegistration_CloseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	reg := r.AddHook(&recordingProvider{name: "a", order: &[]string{}})
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
}

type beforeModelCallProvider struct{ retry bool }

func (p *beforeModelCallProvider) OnBeforeModelCall(ctx context.Context, e *BeforeModelCallEvent) error {
	e.Retry = p.retry
	return nil
}

func TestDispatch_BeforeModelCallCanSetRetry(t *testing.T) {
	r := NewRegistry()
	r.AddHook(&beforeModelCallProvider{retry: true})
	e := &BeforeModelCallEvent{}
	require.NoError(t, Dispatch(context.Background(), r, e))
	require.True(t, e.Retry)
}

type cancelToolProvider struct{ reason any }

func (p *cancelToolProvider) OnBeforeToolCall(ctx context.Context, e *BeforeToolCallEvent) error {
	e.SetCancelTool(p.reason)
	return nil
}

func TestBeforeToolCallEvent_SetCancelToolMarksCancelled(t *testing.T) {
	r := NewRegistry()
	r.AddHook(&cancelToolProvider{reason: "blocked by policy"})
	e := &BeforeToolCallEvent{}
	require.NoError(t, Dispatch(context.Background(), r, e))
	require.True(t, e.Cancelled())
	require.Equal(t, "blocked by policy", e.CancelTool)
}

func TestBeforeToolCallEvent_NotCancelledByDefault(t *testing.T) {
	e := &BeforeToolCallEvent{}
	require.False(t, e.Cancelled())
}
