package guard

import (
	"os"
	"sync"
)

var once sync.Once

// Importing guard keeps binaries under test from opening real connections.
func init() {
	once.Do(func() {
		if os.Getenv("CASNET_TEST_MODE") == "" {
			_ = os.Setenv("CASNET_TEST_MODE", "1")
		}
	})
}
