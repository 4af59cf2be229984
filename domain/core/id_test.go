package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseID tests record ID parsing
func TestParseID(t *testing.T) {
	valid := NewID().String()
	tests := []struct {
		input    string
		expected ID
		hasError bool
	}{
		{valid, ID(valid), false},
		{"  " + valid + " ", ID(valid), false},
		{"", "", true},
		{"not-a-uuid", "", true},
	}

	for _, test := range tests {
		result, err := ParseID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

// TestParseOwnerID tests owner ID parsing
func TestParseOwnerID(t *testing.T) {
	owner, err := ParseOwnerID(" user-1 ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if owner != OwnerID("user-1") {
		t.Errorf("Expected user-1, got %s", owner)
	}
	if _, err := ParseOwnerID(""); err == nil {
		t.Error("Expected error for empty owner")
	}
}
