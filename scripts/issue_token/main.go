package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/pkg/auth"
)

func main() {
	email := flag.String("email", "admin@yametee.local", "email claim")
	customerID := flag.Uint("customer", 1, "customer id claim")
	admin := flag.Bool("admin", true, "issue an admin token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config:", err)
	}

	manager := auth.NewJWTManager(cfg.JWT)
	token, err := manager.GenerateAccessToken(*customerID, *email, *admin)
	if err != nil {
		log.Fatal("Error signing token:", err)
	}

	if _, err := manager.ValidateAccessToken(token); err != nil {
		log.Fatal("Token verification failed:", err)
	}

	fmt.Printf("Email: %s\n", *email)
	fmt.Printf("Admin: %t\n", *admin)
	fmt.Printf("Expires in: %s\n", cfg.JWT.AccessTokenExpiry)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
