package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/msgbridge/internal/app"
	"github.com/florianilch/msgbridge/internal/keypool"
	"github.com/florianilch/msgbridge/internal/keystore"
)

// keysCommand returns the 'keys' subcommand for managing upstream API keys.
func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage upstream API keys",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add an upstream API key to the configured storage",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "stdin",
						Usage: "read the key from standard input instead of prompting",
					},
				},
				Action: keysAddAction,
			},
			{
				Name:   "list",
				Usage:  "List stored upstream API keys (masked)",
				Action: keysListAction,
			},
			{
				Name:   "clear",
				Usage:  "Remove all upstream API keys from the configured storage",
				Action: keysClearAction,
			},
		},
	}
}

// openStore resolves the configured key store. Writable operations reject env storage.
func openStore(cmd *cli.Command, writable bool) (keystore.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if writable && cfg.Keys.Storage == app.StorageTypeEnv {
		return nil, errors.New("cannot modify keys with env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.Keys.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}
	return store, nil
}

func keysAddAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(cmd, true)
	if err != nil {
		return err
	}

	var key string
	if cmd.Bool("stdin") {
		key, err = readLine(cmd.Root().Reader)
	} else {
		key, err = readSecureInput(ctx, cmd.Root().Writer, "Upstream API key: ")
	}
	if err != nil {
		return err
	}

	added, err := keystore.Add(ctx, store, key)
	if err != nil {
		return fmt.Errorf("failed to add key: %w", err)
	}

	out := cmd.Root().Writer
	if !added {
		_, err = fmt.Fprintf(out, "Key %s is already stored\n", keypool.Mask(key))
		return err
	}
	_, err = fmt.Fprintf(out, "Key %s saved to configured storage\n", keypool.Mask(key))
	return err
}

func keysListAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(cmd, false)
	if err != nil {
		return err
	}

	keys, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read keys: %w", err)
	}

	out := cmd.Root().Writer
	if len(keys) == 0 {
		_, err = fmt.Fprintln(out, "No keys stored")
		return err
	}
	for i, key := range keys {
		if _, err := fmt.Fprintf(out, "%d\t%s\n", i+1, keypool.Mask(key)); err != nil {
			return err
		}
	}
	return nil
}

func keysClearAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(cmd, true)
	if err != nil {
		return err
	}

	// Clear keys via empty write to maintain storage abstraction
	if err := store.Write(ctx, nil); err != nil {
		return fmt.Errorf("failed to clear keys: %w", err)
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, "All keys cleared from configured storage")
	return err
}

// readLine reads the first line of r.
func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", errors.New("no key on standard input")
	}
	return scanner.Text(), nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// term.ReadPassword has no native context support, hence the goroutine.
func readSecureInput(ctx context.Context, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	defer func() { _, _ = fmt.Fprintln(out) }()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
