package main

import (
	"log"

	"github.com/brianjwalters/graphrag-service/internal/bootstrap"
	"github.com/brianjwalters/graphrag-service/pkg"
)

func main() {
	pkg.InitLocalEnvConfig()

	app, err := bootstrap.InitService()
	if err != nil {
		log.Fatalf("failed to initialize service: %v", err)
	}

	app.Run()
}
