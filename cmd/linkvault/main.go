package main

import (
	"log"

	"github.com/MrSnakeDoc/linkvault/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ linkvault failed to initialize: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ linkvault failed to start: %v", err)
	}
}
