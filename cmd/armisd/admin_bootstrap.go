package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/store"
	"github.com/armis/armis/pkg/store/repos"
	"github.com/armis/armis/pkg/types"
	"golang.org/x/term"
)

// bootstrapPolicy is attached to the first admin.
const bootstrapPolicy = "admin"

// ensureBootstrapAdmin creates an admin user and token on first run when
// no user exists yet. The token secret is written to outPath, or printed
// once when outPath is empty.
func ensureBootstrapAdmin(ctx context.Context, st store.Store, adminName, adminEmail, outPath string, logger log.Logger) error {
	var in io.Reader
	if isInteractive() {
		in = os.Stdin
	}
	return bootstrapAdmin(ctx, st, adminName, adminEmail, outPath, in, os.Stdout, logger)
}

// bootstrapAdmin does the work of ensureBootstrapAdmin. When in is non-nil
// the admin name and email are prompted for on out.
func bootstrapAdmin(ctx context.Context, st store.Store, adminName, adminEmail, outPath string, in io.Reader, out io.Writer, logger log.Logger) error {
	userRepo := repos.NewUserRepo(st)
	tokenRepo := repos.NewTokenRepo(st)

	users, err := userRepo.List(ctx, types.NamespaceSystem)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	if in != nil {
		reader := bufio.NewReader(in)
		fmt.Fprintf(out, "No users found. Create initial admin.\n")
		adminName = prompt(reader, out, "Admin username", adminName)
		adminEmail = prompt(reader, out, "Admin email (optional)", adminEmail)
	}

	u := &types.User{Name: adminName, Email: adminEmail, Role: "admin", Policies: []string{bootstrapPolicy}}
	if err := userRepo.Create(ctx, u); err != nil {
		return err
	}

	// No expiry for the bootstrap token; revoke it with `armis token revoke`.
	tok, secret, err := tokenRepo.Issue(ctx, "bootstrap-admin", u.ID, "bootstrap admin token", 0)
	if err != nil {
		return err
	}
	logger.Info("Bootstrap admin created", log.Str("user", u.Name), log.Str("token_id", tok.ID))

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(outPath, []byte(secret), 0o600); err != nil {
			return err
		}
		logger.Info("Bootstrap admin token written", log.Str("path", outPath))
		return nil
	}
	fmt.Fprintf(out, "Bootstrap admin token (shown once): %s\n", secret)
	return nil
}

func prompt(r *bufio.Reader, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return def
	}
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return def
}

// isInteractive returns true if stdin is an interactive terminal (TTY)
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
