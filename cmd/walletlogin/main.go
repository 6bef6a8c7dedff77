package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth"
	"github.com/spf13/pflag"
)

func main() {
	var (
		server  = pflag.String("server", "http://localhost:9000", "walletauthd base URL")
		keyHex  = pflag.String("key", os.Getenv("WALLETAUTH_WALLET_KEY"), "hex secp256k1 private key of the wallet")
		confirm = pflag.Bool("confirm", false, "ask before signing the challenge")
		logout  = pflag.Bool("logout", false, "revoke the session right after logging in")
		timeout = pflag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	pflag.Parse()

	if err := run(*server, *keyHex, *confirm, *logout, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "walletlogin: %v\n", err)
		os.Exit(1)
	}
}

func run(server, keyHex string, confirm, logout bool, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wallet := walletauth.NewLocalWallet(nil)
	if keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return fmt.Errorf("invalid wallet key: %w", err)
		}
		wallet.SwitchKey(key)
	}
	if confirm {
		wallet.SetApprover(approveOnTerminal)
	}

	address, err := wallet.Connect()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "logging in as %s\n", address)

	client := walletauth.NewClient(server, wallet)
	tokens, err := client.Login(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tokens); err != nil {
		return err
	}

	if logout {
		return client.Logout(ctx, tokens.RefreshToken)
	}
	return nil
}

func approveOnTerminal(_ context.Context, address, message string) bool {
	fmt.Fprintf(os.Stderr, "\n%s\n\nSign this message with %s? [y/N] ", message, address)
	var answer string
	_, _ = fmt.Scanln(&answer)
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}
