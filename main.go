package main

import (
	"curio/cmd/handlers"
	"curio/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
