package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/linlinbupt123-crypto/treasury_service/domain"
)

// 生成新的 treasury 种子并加密落盘. 助记词只打印一次, 需离线备份.
func main() {
	out := flag.String("out", "config/treasury.seed", "sealed seed file")
	passEnv := flag.String("passphrase-env", "TREASURY_KEYRING_PASSPHRASE", "env var holding the passphrase")
	ref := flag.String("ref", "treasury/0", "key ref to print the address of")
	flag.Parse()

	_ = godotenv.Load()
	passphrase := os.Getenv(*passEnv)
	if len(passphrase) < 12 {
		log.Fatalf("%s must hold a passphrase of at least 12 characters", *passEnv)
	}
	if _, err := os.Stat(*out); err == nil {
		log.Fatalf("%s already exists, refusing to overwrite", *out)
	}

	sealed, mnemonic, err := domain.SealNewSeed(passphrase)
	if err != nil {
		log.Fatal("seal seed:", err)
	}
	if err := domain.WriteSealedSeed(*out, sealed); err != nil {
		log.Fatal("write seed:", err)
	}

	keyring, err := domain.OpenKeyring(*out, passphrase)
	if err != nil {
		log.Fatal("reopen seed:", err)
	}
	defer keyring.Close()
	addr, err := keyring.Address(*ref)
	if err != nil {
		log.Fatal("derive address:", err)
	}

	fmt.Println("mnemonic (write it down, it is not stored in clear):")
	fmt.Println(mnemonic)
	fmt.Printf("%s address: %s\n", *ref, addr)
	fmt.Printf("sealed seed written to %s\n", *out)
}
