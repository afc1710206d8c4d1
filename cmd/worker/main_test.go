package main

import (
	"testing"

	_ "github.com/odyssey-erp/finledger/testing"

	"github.com/odyssey-erp/finledger/internal/app"
)

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected test mode")
	}
	main()
}
