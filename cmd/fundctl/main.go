package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"fundchain/cmd/internal/passphrase"
	"fundchain/config"
	"fundchain/crypto"
	"fundchain/native/crowdfund"
	"fundchain/rpc"
	"fundchain/storage/journal"
)

const (
	defaultPassEnv  = "FUND_KEYSTORE_PASSPHRASE"
	defaultConfig   = "./config.toml"
	defaultKeystore = "operator.keystore"
)

var errUsage = errors.New("usage")

func main() {
	if err := dispatch(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func dispatch(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage()
		return errUsage
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], out)
	case "token":
		return runToken(args[1:], out)
	case "addr":
		return runAddr(args[1:], out)
	case "vault":
		return runVault(args[1:], out)
	case "export-events":
		return runExportEvents(args[1:], out)
	default:
		usage()
		return errUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: fundctl <command> [flags]

Commands:
  keygen   generate an operator key and write it to an encrypted keystore
  token    mint a bearer token for an address using the daemon's secret
  addr     decode and validate an address, or print a keystore's address
  vault    print the escrow address of a campaign
  export-events
           write the notification journal to a parquet file`)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use -force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv).WithConfirmation().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintf(out, "address:  %s\nkeystore: %s\n", key.PubKey().Address().String(), *keystorePath)
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Daemon configuration providing the signing secret")
	subject := fs.String("subject", "", "Address the token authenticates as")
	keystorePath := fs.String("keystore", "", "Keystore whose address is used as the subject")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		who [20]byte
		err error
	)
	switch {
	case strings.TrimSpace(*subject) != "":
		who, err = crypto.ParseFundAddress(*subject)
	case *keystorePath != "":
		who, err = keystoreAddress(*keystorePath, *passEnv)
	default:
		return fmt.Errorf("either -subject or -keystore is required")
	}
	if err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	token, err := rpc.IssueToken(rpc.AuthConfig{
		HMACSecret: cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	}, who, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runAddr(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("addr", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Print the address held in this keystore")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		addr [20]byte
		err  error
	)
	switch {
	case *keystorePath != "":
		addr, err = keystoreAddress(*keystorePath, *passEnv)
	case fs.NArg() == 1:
		addr, err = parseAnyAddress(fs.Arg(0))
	default:
		return fmt.Errorf("expected one address argument or -keystore")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "bech32: %s\nhex:    0x%s\n", crypto.FormatFundAddress(addr), hex.EncodeToString(addr[:]))
	return nil
}

func runVault(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("vault", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected a campaign id")
	}
	id, err := crowdfund.ParseID(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, crypto.FormatFundAddress(crowdfund.VaultAddress(id)))
	return nil
}

func runExportEvents(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export-events", flag.ContinueOnError)
	journalPath := fs.String("journal", "", "Path to the journal database")
	outPath := fs.String("out", "events.parquet", "Destination parquet file")
	campaign := fs.String("campaign", "", "Only export entries for this campaign id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*journalPath) == "" {
		return fmt.Errorf("-journal is required")
	}
	if _, err := os.Stat(*journalPath); err != nil {
		return fmt.Errorf("journal %s: %w", *journalPath, err)
	}
	if *campaign != "" {
		id, err := crowdfund.ParseID(*campaign)
		if err != nil {
			return err
		}
		*campaign = crowdfund.FormatID(id)
	}
	j, err := journal.Open(*journalPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer j.Close()
	n, err := j.ExportParquet(context.Background(), *outPath, *campaign)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d entries to %s\n", n, *outPath)
	return nil
}

// parseAnyAddress accepts a bech32 fund address or 20 bytes of hex.
func parseAnyAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, string(crypto.FundPrefix)+"1") {
		return crypto.ParseFundAddress(trimmed)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X"))
	if err != nil {
		return [20]byte{}, fmt.Errorf("address is neither bech32 nor hex: %w", err)
	}
	addr, err := crypto.NewAddress(crypto.FundPrefix, decoded)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func keystoreAddress(path, passEnv string) ([20]byte, error) {
	pass, err := passphrase.NewSource(passEnv).Get()
	if err != nil {
		return [20]byte{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return [20]byte{}, fmt.Errorf("open keystore: %w", err)
	}
	return key.PubKey().Address().Array(), nil
}
