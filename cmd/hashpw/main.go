// Command hashpw prints the Argon2id hash of a password for admin.password_hash.
//
//	echo -n 'secret' | hashpw
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"agency-ledger/internal/service"
)

func main() {
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		fmt.Fprintln(os.Stderr, "usage: echo -n <password> | hashpw")
		os.Exit(2)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		fmt.Fprintln(os.Stderr, "empty password")
		os.Exit(2)
	}

	hash, err := service.NewArgon2HashService().Hash(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
