// Command schema-generator regenerates the embedded relay.yml schema.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/relay/config"
)

func main() {
	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	outputPath := filepath.Join("schema", "relay.embedded.schema.json")
	if err := os.WriteFile(outputPath, append(schemaBytes, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Generated schema at %s", outputPath)
}
