package main

import (
	"newscrunch/cmd/handlers"
)

func main() {
	handlers.Execute()
}
