package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/pkg/email"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run ./scripts/smtp_check <recipient>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sender := email.NewSMTPSender(cfg.Email)
	msg := &email.Email{
		To:          []string{os.Args[1]},
		Subject:     cfg.App.Name + " SMTP check",
		HTMLContent: "<h1>It works</h1><p>Order confirmations will be delivered from this mailbox.</p>",
		Type:        email.EmailTypeOrderConfirmation,
	}

	if err := sender.Send(ctx, msg); err != nil {
		log.Fatal("Send failed:", err)
	}

	log.Printf("Test email sent to %s via %s:%d", os.Args[1], cfg.Email.SMTPHost, cfg.Email.SMTPPort)
}
