package app

import (
	"os"
	"sync"
)

const testModeEnv = "ORDERPILOT_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binary should skip runtime side effects.
// Used by the mains so package-level test runs never open real connections.
func InTestMode() bool {
	return inTestMode()
}
