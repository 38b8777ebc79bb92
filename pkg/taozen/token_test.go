package taozen

import (
	"errors"
	"testing"
	"time"
)

func TestCancelToken_FiresOnce(t *testing.T) {
	tok := NewCancelToken()
	cause := errors.New("first")

	if tok.Cancelled() {
		t.Fatal("fresh token should not be cancelled")
	}
	if !tok.Cancel(cause) {
		t.Fatal("first Cancel should return true")
	}
	if tok.Cancel(errors.New("second")) {
		t.Fatal("second Cancel should return false")
	}
	if tok.Err() != cause {
		t.Errorf("cause should be the first error, got %v", tok.Err())
	}

	select {
	case <-tok.Done():
	default:
		t.Error("Done channel should be closed after Cancel")
	}
}

func TestCancelToken_Callbacks(t *testing.T) {
	tok := NewCancelToken()

	fired := 0
	tok.OnCancel(func() { fired++ })
	tok.OnCancel(func() { panic("boom") })
	tok.OnCancel(func() { fired++ })

	tok.Cancel(errors.New("stop"))

	if fired != 2 {
		t.Errorf("expected both plain callbacks to run despite panic, got %d", fired)
	}

	// Registered after firing: runs immediately
	tok.OnCancel(func() { fired++ })
	if fired != 3 {
		t.Error("callback registered after firing should run immediately")
	}
}

func TestCancelToken_DoneSelect(t *testing.T) {
	tok := NewCancelToken()

	go func() {
		time.Sleep(10 * time.Millisecond)
		tok.Cancel(errors.New("stop"))
	}()

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("Done never fired")
	}
}
