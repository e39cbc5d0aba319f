package textnorm

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello   world  ", "hello world"},
		{"price???", "price?"},
		{"wow!!! ok..", "wow! ok."},
		{"zero\u200bwidth", "zerowidth"},
		{"tab\tand\nnewline", "tab and newline"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("  DY-CS3000   Price "); got != "dy-cs3000 price" {
		t.Errorf("Fold = %q", got)
	}
}

func TestDetectMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"What is the price of CS3000?", ModeEnglish},
		{"cs3000 ka price kya hai", ModeHinglish},
		{"mujhe embroidery machine chahiye", ModeHinglish},
		{"kitna?", ModeHinglish},
		{"कीमत क्या है", ModeHinglish},
		{"hi", ModeEnglish},
		{"", ModeEnglish},
		{"Is there a warranty on the motor and what does it cover for bhi", ModeEnglish},
	}
	for _, tt := range tests {
		if got := DetectMode(tt.in); got != tt.want {
			t.Errorf("DetectMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
