// Command sign prints the authentication headers for a request body, for
// use with curl while testing the API by hand.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eldtechnologies/inbox/internal/api/middleware"
	"github.com/eldtechnologies/inbox/internal/crypto"
)

func main() {
	privKeyB64 := flag.String("key", os.Getenv("INBOX_PRIVATE_KEY"), "Base64-encoded Ed25519 private key")
	identityID := flag.String("identity", os.Getenv("INBOX_IDENTITY"), "Identity UUID")
	bodyFile := flag.String("body", "", "File containing request body (or use stdin)")
	curl := flag.Bool("curl", false, "Print headers as curl -H arguments")
	flag.Parse()

	if *privKeyB64 == "" || *identityID == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -key <private-key-base64> -identity <uuid> [-body <file>] [-curl]")
		fmt.Fprintln(os.Stderr, "  Reads body from stdin if -body not specified")
		os.Exit(1)
	}

	privKeyBytes, err := base64.StdEncoding.DecodeString(*privKeyB64)
	if err != nil || len(privKeyBytes) != ed25519.PrivateKeySize {
		fmt.Fprintln(os.Stderr, "Invalid private key: must be base64-encoded Ed25519 private key (64 bytes)")
		os.Exit(1)
	}

	var body []byte
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate nonce: %v\n", err)
		os.Exit(1)
	}
	timestamp := time.Now().UnixMilli()
	signature := crypto.SignRequest(ed25519.PrivateKey(privKeyBytes), body, nonce, timestamp)

	headers := [][2]string{
		{middleware.HeaderIdentity, *identityID},
		{middleware.HeaderNonce, nonce},
		{middleware.HeaderTimestamp, fmt.Sprint(timestamp)},
		{middleware.HeaderSignature, signature},
	}
	for _, h := range headers {
		if *curl {
			fmt.Printf("-H '%s: %s' ", h[0], h[1])
			continue
		}
		fmt.Printf("%s: %s\n", h[0], h[1])
	}
	if *curl {
		fmt.Println()
	}
}
