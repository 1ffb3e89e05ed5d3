// cmd/server/main.go
package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/trivio-gg/trivio/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
