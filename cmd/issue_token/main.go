package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/edukinara/happybar-sub000/internal/config"
	"github.com/edukinara/happybar-sub000/internal/utils"
)

// issue_token prints a bearer token for a counting device
func main() {
	device := flag.String("device", "", "device id (required)")
	role := flag.String("role", "counter", "device role")
	ttl := flag.Duration("ttl", utils.DeviceTokenTTL, "token lifetime")
	flag.Parse()

	if *device == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token, err := utils.GenerateDeviceToken(*device, *role, cfg.JWTSecret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Token for %s (valid %s, until %s):\n%s\n", *device, *ttl, time.Now().Add(*ttl).Format(time.RFC3339), token)
}
