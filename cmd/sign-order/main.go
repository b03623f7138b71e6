package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/uhyunpark/bookcast/pkg/api"
	"github.com/uhyunpark/bookcast/pkg/auth"
)

func main() {
	keyHex := flag.String("key", "", "hex private key (generated when empty)")
	jwtSecret := flag.String("jwt-secret", "", "issue an HMAC token for -user instead of a wallet credential")
	user := flag.String("user", "", "user id for -jwt-secret tokens")
	symbol := flag.String("symbol", "BTC-USD", "instrument")
	side := flag.String("side", "BUY", "BUY or SELL")
	qty := flag.String("qty", "0.5", "quantity")
	price := flag.String("price", "45000", "limit price")
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	flag.Parse()

	// Step 1: Build credential
	var credential string
	if *jwtSecret != "" {
		if *user == "" {
			fail("-user is required with -jwt-secret")
		}
		tok, err := auth.IssueToken(*jwtSecret, auth.Identity{UserID: *user}, time.Hour)
		if err != nil {
			fail("issue token: %v", err)
		}
		credential = tok
		fmt.Printf("User: %s (token valid 1h)\n\n", *user)
	} else {
		signer, err := loadSigner(*keyHex)
		if err != nil {
			fail("key: %v", err)
		}
		credential, err = auth.Credential(signer, time.Now())
		if err != nil {
			fail("sign: %v", err)
		}

		// Step 2: Verify locally before printing
		id, err := auth.NewEthVerifier(time.Minute).Verify(context.Background(), credential)
		if err != nil {
			fail("verify: %v", err)
		}
		fmt.Printf("Address: %s\n", id.UserID)
		if *keyHex == "" {
			fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
		}
		fmt.Println()
	}

	// Step 3: Order request body
	body, err := json.MarshalIndent(api.PlaceOrderRequest{
		Symbol:   *symbol,
		Side:     *side,
		Type:     "LIMIT",
		Quantity: json.Number(*qty),
		Price:    json.Number(*price),
	}, "", "  ")
	if err != nil {
		fail("encode: %v", err)
	}

	fmt.Println("Order request (JSON):")
	fmt.Println(string(body))
	fmt.Println()
	fmt.Println("Submit with:")
	fmt.Printf("  curl -X POST %s/api/v1/orders \\\n", *apiURL)
	fmt.Printf("    -H 'Authorization: Bearer %s' \\\n", credential)
	fmt.Println("    -H 'Content-Type: application/json' \\")
	fmt.Printf("    -d '%s'\n", compact(body))
}

func loadSigner(keyHex string) (*auth.Signer, error) {
	if keyHex == "" {
		fmt.Println("Generating new keypair...")
		return auth.GenerateKey()
	}
	return auth.FromPrivateKeyHex(keyHex)
}

func compact(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
