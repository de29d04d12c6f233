package invocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/queueio/pkg/future"
	"github.com/cuemby/queueio/pkg/queuevar"
)

func TestNewDefaults(t *testing.T) {
	inv := New(context.Background(), "orders.ship", nil, nil)

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "orders.ship", inv.Routine)
	assert.Equal(t, DefaultPriority, inv.Priority)
	assert.NotNil(t, inv.Args)
	assert.NotNil(t, inv.Kwargs)

	other := New(context.Background(), "orders.ship", nil, nil)
	assert.NotEqual(t, inv.ID, other.ID)
}

// TestPriorityInheritance: a child invocation built under priority 2
// inherits 2 unless explicitly overridden.
func TestPriorityInheritance(t *testing.T) {
	ctx := WithPriority(context.Background(), 2)

	child := New(ctx, "child", nil, nil)
	assert.Equal(t, 2, child.Priority)

	overridden := New(ctx, "child", nil, nil, Priority(9))
	assert.Equal(t, 9, overridden.Priority)
}

func TestPriorityFromContext(t *testing.T) {
	assert.Equal(t, DefaultPriority, PriorityFromContext(nil))
	assert.Equal(t, DefaultPriority, PriorityFromContext(context.Background()))
	assert.Equal(t, 7, PriorityFromContext(WithPriority(context.Background(), 7)))
}

func TestSerializeRoundTrip(t *testing.T) {
	tenant := queuevar.New("tenant", "")
	ctx := queuevar.With(context.Background(), tenant, "acme")
	ctx = WithPriority(ctx, 2)

	inv := New(ctx, "orders.ship", []any{"order-1", 3.0}, map[string]any{"express": true})
	body, err := inv.Serialize()
	require.NoError(t, err)

	out, err := Deserialize(body)
	require.NoError(t, err)

	assert.Equal(t, inv.ID, out.ID)
	assert.Equal(t, "orders.ship", out.Routine)
	assert.Equal(t, []any{"order-1", 3.0}, out.Args)
	assert.Equal(t, map[string]any{"express": true}, out.Kwargs)
	assert.Equal(t, 2, out.Priority)
	assert.Equal(t, "acme", tenant.Get(out.Context.Load(context.Background())))
}

// TestSerializedPriorityInherited: the serialized wire priority is the
// inherited one, so a remote worker sees the same value.
func TestSerializedPriorityInherited(t *testing.T) {
	inv := New(WithPriority(context.Background(), 2), "child", nil, nil)
	body, err := inv.Serialize()
	require.NoError(t, err)

	out, err := Deserialize(body)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Priority)
}

func TestDeserializeGarbage(t *testing.T) {
	_, err := Deserialize([]byte("definitely not json"))
	assert.Error(t, err)
}

func TestSubmitWithoutHandler(t *testing.T) {
	inv := New(context.Background(), "orphan", nil, nil)
	_, err := inv.Submit(context.Background())
	assert.Error(t, err)
}

func TestWithHandler(t *testing.T) {
	called := false
	h := Handler(func(ctx context.Context, inv *Invocation) (*future.Future[any], error) {
		called = true
		return nil, nil
	})
	ctx := WithHandler(context.Background(), h)

	got, ok := HandlerFromContext(ctx)
	require.True(t, ok)
	_, _ = got(ctx, New(ctx, "x", nil, nil))
	assert.True(t, called)
}
