// Command keygen prints a fresh 256-bit artifact encryption key, hex encoded,
// suitable for the kyc-backend --secret-key-hex flag.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/agmanagement/kyc-intake/cryptoutils"
)

func main() {
	key := make([]byte, cryptoutils.KeySize)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}
	fmt.Println(hex.EncodeToString(key))
}
