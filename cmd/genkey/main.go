// Command genkey generates an Ed25519 keypair for an inbox identity.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
)

func main() {
	env := flag.Bool("env", false, "Print as environment variable assignments")
	flag.Parse()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	pubB64 := base64.StdEncoding.EncodeToString(pub)
	privB64 := base64.StdEncoding.EncodeToString(priv)

	if *env {
		fmt.Printf("INBOX_PUBLIC_KEY=%s\n", pubB64)
		fmt.Printf("INBOX_PRIVATE_KEY=%s\n", privB64)
		return
	}

	fmt.Printf("Public key (base64):  %s\n", pubB64)
	fmt.Printf("Private key (base64): %s\n", privB64)
	fmt.Println("Register with: POST /register {\"public_key\": \"<public key>\", \"name\": \"...\"}")
}
