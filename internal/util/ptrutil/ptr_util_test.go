package ptrutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPtr(t *testing.T) {
	t.Parallel()

	{
		v := int64(7)
		require.Equal(t, &v, Ptr(int64(7)))
	}
}
