package main

import (
	"testing"

	"github.com/casnet/casnet-backend/internal/app"
	_ "github.com/casnet/casnet-backend/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("guard should force test mode")
	}
	main()
}
