package testutil

import "testing"

var (
	_ TestingTB = (*testing.B)(nil)
	_ TestingTB = (*testing.F)(nil)
	_ TestingTB = (*testing.T)(nil)
)
