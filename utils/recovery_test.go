package utils

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecoverFromPanic(t *testing.T) {
	done := false
	func() {
		defer RecoverFromPanic(zerolog.Nop(), "test")
		done = true
		panic("boom")
	}()
	if !done {
		t.Error("guarded function did not run")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	SafeGo(zerolog.Nop(), "test", func() {
		close(ran)
		panic("boom")
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not run")
	}
}
