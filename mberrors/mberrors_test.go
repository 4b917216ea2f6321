package mberrors

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := IOError("tcp:10.0.0.1:502", errors.New("short read"))
	if KindOf(err) != KindIOError {
		t.Errorf("expected KindIOError, got %v", KindOf(err))
	}

	if KindOf(errors.New("plain")) != KindUnknown {
		t.Errorf("expected KindUnknown for a plain error")
	}

	wrapped := errors.Join(errors.New("context"), ConnectionFailed("rtu:/dev/ttyUSB0", errors.New("dial failed")))
	if KindOf(wrapped) != KindConnectionFailed {
		t.Errorf("expected KindOf to see through errors.Join, got %v", KindOf(wrapped))
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ConnectionFailed("e", errors.New("x")), false},
		{IOError("e", errors.New("x")), true},
		{DecodeError("e", errors.New("x")), true},
		{TransactionIDMismatch("e", errors.New("x")), true},
		{SlaveException("e", errors.New("x")), true},
		{Unknown("e", errors.New("x")), false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("%v: expected retryable=%v, got %v", c.err, c.want, got)
		}
	}
}

func TestDisconnectsConnection(t *testing.T) {
	if DisconnectsConnection(SlaveException("e", errors.New("x"))) {
		t.Error("a slave exception should not indicate the connection is unhealthy")
	}
	if !DisconnectsConnection(IOError("e", errors.New("x"))) {
		t.Error("an io error should indicate the connection is unhealthy")
	}
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ConnectionFailed("tcp:10.0.0.1:502", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}

	var te *TransactionError
	if !errors.As(err, &te) {
		t.Fatal("expected errors.As to find a *TransactionError")
	}
	if te.Cause() == nil {
		t.Error("expected Cause() to return the wrapped error")
	}
}

func TestErrorMessageIncludesEndpointAndKind(t *testing.T) {
	err := SlaveException("tcp:10.0.0.1:502", errors.New("illegal data address"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected a non-empty error message")
	}
	if KindOf(err).String() != "slave exception" {
		t.Errorf("unexpected Kind.String(): %q", KindOf(err).String())
	}
}
