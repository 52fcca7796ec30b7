package track

import "testing"

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want bool
	}{
		{name: "complete", d: Descriptor{ID: "101", DurationMillis: 1000}, want: true},
		{name: "missing id", d: Descriptor{DurationMillis: 1000}, want: false},
		{name: "zero duration", d: Descriptor{ID: "101"}, want: false},
		{name: "negative duration", d: Descriptor{ID: "101", DurationMillis: -1}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	d := Descriptor{ID: "101", Title: "So What", Artist: "Miles Davis", DurationMillis: 562000}
	want := "Miles Davis - So What (101)"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
