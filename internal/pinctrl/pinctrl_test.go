package pinctrl

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"0", false},
		{"1", true},
		{"\n1\n", true},
		{"\n0\n", false},
	}
	for _, tc := range tests {
		result, err := parseLevel(tc.input)
		if err != nil {
			t.Errorf("error parsing level output %q: %v", tc.input, err)
		}
		if result != tc.expected {
			t.Errorf("expected %v for input %q, got %v", tc.expected, tc.input, result)
		}
	}
}

func TestParseLevel_Garbage(t *testing.T) {
	if _, err := parseLevel("pin not found"); err == nil {
		t.Fatal("expected error for garbage pinctrl output, got none")
	}
}
