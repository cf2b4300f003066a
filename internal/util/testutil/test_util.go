package testutil

// TestingTB is an interface wrapper around *testing.T that's implemented by
// all of *testing.T, *testing.F, and *testing.B.
//
// Production code that exposes test-only hooks takes it instead of
// testing.TB so it doesn't have to import the testing package.
type TestingTB interface {
	Errorf(format string, args ...any)
	FailNow()
	Helper()
	Log(args ...any)
	Logf(format string, args ...any)
}
