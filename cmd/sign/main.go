package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("AUTH_SECRET"), "HMAC secret (defaults to AUTH_SECRET)")
	subject := flag.String("sub", "", "Identity provider user id")
	name := flag.String("name", "", "Display name")
	email := flag.String("email", "", "Email address")
	image := flag.String("image", "", "Avatar URL")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -sub <user-id> [-name n] [-email e] [-image url] [-ttl 24h] [-secret s]")
		os.Exit(1)
	}

	token, err := crypto.SignSessionToken([]byte(*secret), *subject, crypto.SessionClaims{
		Name:     *name,
		ImageURL: *image,
		Email:    *email,
	}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
}
