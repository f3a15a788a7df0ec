package main

import (
	"fmt"

	"wirelink/internal/config"
)

func main() {
	fmt.Println("# Wirelink Environment Variables")
	fmt.Println()
	fmt.Println("Wirelink supports configuration via environment variables.")
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()

	cfg := &config.Config{}
	examples := config.EnvExample(cfg)

	for _, example := range examples {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Override the remote endpoint")
	fmt.Println("export WIRELINK_WIRELINK_CLIENT_ENDPOINT=wss://stream.example.com/ws")
	fmt.Println()
	fmt.Println("# Slow down reconnection")
	fmt.Println("export WIRELINK_WIRELINK_CLIENT_BASERECONNECTDELAYMS=5000")
	fmt.Println()
	fmt.Println("# Run with env vars")
	fmt.Println("./wirelink -config wirelink.yaml")
	fmt.Println("```")
}
