// Package testing puts the process into test mode when a test binary imports
// it for side effects. Commands then return from main without starting
// servers or dialling Postgres and Redis.
package testing

import "os"

// Mirrors app.TestModeEnv; importing app here would cycle with its tests.
const testModeEnv = "FINLEDGER_TEST_MODE"

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
}
