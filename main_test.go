package riverscript

import (
	"testing"

	"github.com/riverqueue/riverscript/internal/scriptsharedtest"
)

func TestMain(m *testing.M) {
	scriptsharedtest.WrapTestMain(m)
}
