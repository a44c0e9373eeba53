package z

import (
	"github.com/pkg/errors"
)

// Check logs fatal if err != nil.
func Check(err error) {
	if err != nil {
		panic(errors.Wrap(err, "unexpected error"))
	}
}

// AssertTrue asserts that b is true. Otherwise, it would panic.
func AssertTrue(b bool) {
	if !b {
		panic(errors.New("assert failed"))
	}
}

// AssertTruef is AssertTrue with extra info.
func AssertTruef(b bool, format string, args ...interface{}) {
	if !b {
		panic(errors.Errorf(format, args...))
	}
}

// Wrapf is Wrap with extra info.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return errors.Wrapf(err, format, args...)
}
