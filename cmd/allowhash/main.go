package main

import (
	"fmt"
	"os"

	"github.com/tjfontaine/sidebar-gate/internal/tenant"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/allowhash <organization-id>...")
		fmt.Println("Prints the tenant allow-hash of each organization ID for use in config.yaml")
		os.Exit(1)
	}

	for _, id := range os.Args[1:] {
		hash := tenant.HashID(id)
		fmt.Printf("Organization: %s\n", id)
		fmt.Printf("Allow hash:   %s\n", hash)
	}
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  gate:\n")
	fmt.Printf("    tenant:\n")
	fmt.Printf("      allow_hash: \"%s\"\n", tenant.HashID(os.Args[1]))
}
