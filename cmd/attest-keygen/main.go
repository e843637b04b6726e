// attest-keygen prints a fresh Ed25519 attestor keypair. The seed goes into
// ATTEST_KEY_SEED on the node; the public key is registered with the
// settlement verifier out of band.
package main

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/fairlend/fairlend/pkg/core/attest"
)

func main() {
	attestor, err := attest.Generate()
	if err != nil {
		log.Fatalf("keygen: %v", err)
	}
	fmt.Printf("seed (ATTEST_KEY_SEED, keep secret): %s\n", attestor.SeedHex())
	fmt.Printf("public key (register with verifier): %s\n", hex.EncodeToString(attestor.PublicKey()))
}
