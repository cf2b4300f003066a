package scripttype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZero(t *testing.T) {
	t.Parallel()

	for _, kind := range AllKinds() {
		zero := Zero(kind)
		require.Equal(t, kind, zero.Kind)
		require.Zero(t, zero.Len())
	}

	require.Equal(t, int64(0), Zero(KindInteger).Int)
	require.NotNil(t, Zero(KindMap).Entries)
}

func TestNewSet(t *testing.T) {
	t.Parallel()

	set := NewSet(NewInteger(1), NewInteger(2), NewInteger(1), NewText("1"))
	require.Len(t, set.Elems, 3)
}

func TestValueEqual(t *testing.T) {
	t.Parallel()

	t.Run("Scalars", func(t *testing.T) {
		t.Parallel()

		require.True(t, NewInteger(5).Equal(NewInteger(5)))
		require.False(t, NewInteger(5).Equal(NewInteger(6)))
		require.False(t, NewInteger(0).Equal(NewBool(false)))
		require.True(t, NewPoint(Point{X: 1, Y: 2}).Equal(NewPoint(Point{X: 1, Y: 2})))
	})

	t.Run("Collections", func(t *testing.T) {
		t.Parallel()

		require.True(t, NewList(NewText("a"), NewText("b")).Equal(NewList(NewText("a"), NewText("b"))))
		require.False(t, NewList(NewText("a")).Equal(NewList(NewText("a"), NewText("b"))))
		require.True(t, NewMap(map[string]*Value{"a": NewInteger(1)}).Equal(NewMap(map[string]*Value{"a": NewInteger(1)})))
		require.False(t, NewMap(map[string]*Value{"a": NewInteger(1)}).Equal(NewMap(map[string]*Value{"b": NewInteger(1)})))
	})

	t.Run("CyclicTerminates", func(t *testing.T) {
		t.Parallel()

		a := NewList(NewInteger(1))
		a.Elems = append(a.Elems, a)
		b := NewList(NewInteger(1))
		b.Elems = append(b.Elems, b)

		require.True(t, a.Equal(b))
	})
}

func TestValueString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "15", NewInteger(15).String())
	require.Equal(t, "[a b]", NewList(NewText("a"), NewText("b")).String())
	require.Equal(t, "map[a:1 b:2]", NewMap(map[string]*Value{"b": NewInteger(2), "a": NewInteger(1)}).String())
	require.Equal(t, "set[true]", NewSet(NewBool(true)).String())

	cyclic := NewList(NewInteger(1))
	cyclic.Elems = append(cyclic.Elems, cyclic)
	require.Equal(t, "[1 ...]", cyclic.String())
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	require.Nil(t, Unwrap(nil))
	require.Equal(t, int64(3), Unwrap(NewInteger(3)))
	require.Equal(t, []any{"a", int64(1)}, Unwrap(NewList(NewText("a"), NewInteger(1))))
	require.Equal(t, map[string]any{"k": true}, Unwrap(NewMap(map[string]*Value{"k": NewBool(true)})))

	t.Run("SharedNodeUnwrappedEachTime", func(t *testing.T) {
		t.Parallel()

		shared := NewList(NewInteger(1))
		require.Equal(t, []any{[]any{int64(1)}, []any{int64(1)}}, Unwrap(NewList(shared, shared)))
	})

	t.Run("CycleUnwrapsToNil", func(t *testing.T) {
		t.Parallel()

		cyclic := NewList(NewInteger(1))
		cyclic.Elems = append(cyclic.Elems, cyclic)
		require.Equal(t, []any{int64(1), nil}, Unwrap(cyclic))
	})
}
