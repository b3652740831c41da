package monitoring

import (
	"fmt"
	"log"
	"testing"
)

func TestSetLoggerCaptures(t *testing.T) {
	defer SetLogger(log.Printf)

	var got string
	SetLogger(func(format string, v ...any) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("plate %s seen %d times", "ABC123", 2)
	if got != "plate ABC123 seen 2 times" {
		t.Errorf("captured %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	defer SetLogger(log.Printf)

	SetLogger(nil)
	// Must not panic.
	Logf("dropped %d frames", 7)
}
