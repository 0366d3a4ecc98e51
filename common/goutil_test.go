package common

import "testing"

func TestContainsStringSlice(t *testing.T) {
	slice := []string{"a", "b", "c"}

	if !ContainsStringSlice(slice, "b") {
		t.Error("should contain b")
	}

	if ContainsStringSlice(slice, "B") {
		t.Error("should not contain B")
	}

	if !ContainsStringSliceFold(slice, "B") {
		t.Error("should contain B when folding")
	}

	if ContainsStringSlice(nil, "a") {
		t.Error("nil slice should contain nothing")
	}
}
