package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Generates the Ed25519 seed for TOKEN_SIGNING_KEY.
func main() {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}

	fmt.Printf("TOKEN_SIGNING_KEY=%s\n", base64.StdEncoding.EncodeToString(priv.Seed()))
}
