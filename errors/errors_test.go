package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNewCarriesCallSite(t *testing.T) {
	err := New("boom %d", 7)
	if err == nil {
		t.Fatal("New returned nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "errors_test.go") {
		t.Errorf("message should name the calling file: %q", msg)
	}
	if !strings.Contains(msg, "boom 7") {
		t.Errorf("message should carry the formatted text: %q", msg)
	}
}

func TestWrapf(t *testing.T) {
	base := stderrors.New("root cause")
	err := Wrapf(base, "while doing %s", "work")
	if !stderrors.Is(err, base) {
		t.Error("Wrapf must preserve the wrapped error")
	}
	if !strings.Contains(err.Error(), "while doing work") {
		t.Errorf("wrong message: %q", err.Error())
	}
}

func TestWrapfNil(t *testing.T) {
	if err := Wrapf(nil, "context"); err != nil {
		t.Fatalf("Wrapf(nil) must be nil, got %v", err)
	}
}

func TestClassPredicates(t *testing.T) {
	perr := Protocol("response id %d unknown", 9)
	herr := Host("process exited")

	if !IsProtocol(perr) || IsHost(perr) {
		t.Errorf("misclassified protocol error: %v", perr)
	}
	if !IsHost(herr) || IsProtocol(herr) {
		t.Errorf("misclassified host error: %v", herr)
	}
	if IsProtocol(nil) || IsHost(nil) {
		t.Error("nil is neither class")
	}

	wrapped := Wrapf(perr, "during read")
	if !IsProtocol(wrapped) {
		t.Error("classification must survive wrapping")
	}
	if !strings.Contains(perr.Error(), "response id 9 unknown") {
		t.Errorf("wrong message: %q", perr.Error())
	}
}
