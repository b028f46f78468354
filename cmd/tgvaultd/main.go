package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/tgvault/internal/daemon"
	"github.com/matheus3301/tgvault/internal/session"
)

func main() {
	vaultFlag := flag.String("vault", "", "vault name (overrides config default)")
	flag.Parse()

	vaultName := session.Resolve(*vaultFlag)
	if err := session.ValidateName(vaultName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{VaultName: vaultName}),
	)

	app.Run()
}
