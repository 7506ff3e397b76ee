// Command createadmin creates an admin account, or promotes an existing
// account to admin. It reads the server configuration the same way the
// server does. Values come from ADMIN_EMAIL, ADMIN_FULL_NAME and
// ADMIN_PASSWORD when set, otherwise from interactive prompts.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/prompt"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	in, err := readInput()
	if err != nil {
		return err
	}

	db, err := dbx.Open(ctx, dbx.DriverPgx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	tokens := auth.NewTokenService([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration,
		cfg.RefreshTokenValidityDuration, m.RevokedTokens(db))
	us, err := services.NewUserService(db, m, tokens, auth.NewBcryptHasher(cfg.PasswordHashCost),
		auth.NewDefaultPasswordPolicy(), logger)
	if err != nil {
		return err
	}

	user, created, err := us.EnsureAdmin(ctx, in)
	if err != nil {
		var verr *common.ValidationError
		if errors.As(err, &verr) {
			for field, msgs := range verr.Fields {
				for _, msg := range msgs {
					fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
				}
			}
			return errors.New("admin account was not saved")
		}
		return err
	}

	if created {
		fmt.Printf("Admin %s created (id=%s)\n", user.Email, user.ID)
	} else {
		fmt.Printf("User %s promoted to admin (id=%s)\n", user.Email, user.ID)
	}
	return nil
}

func readInput() (services.AdminInput, error) {
	in := services.AdminInput{
		Email:    os.Getenv("ADMIN_EMAIL"),
		FullName: os.Getenv("ADMIN_FULL_NAME"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}

	reader := bufio.NewReader(os.Stdin)
	var err error

	if in.Email == "" {
		if in.Email, err = prompt.GetSimpleText(reader, "Email", os.Stdout); err != nil {
			return in, err
		}
	}
	if in.FullName == "" {
		if in.FullName, err = prompt.GetSimpleText(reader, "Full name", os.Stdout); err != nil {
			return in, err
		}
	}
	if in.Password != "" {
		return in, nil
	}

	if !prompt.IsTerminal() {
		return in, errors.New("ADMIN_PASSWORD must be set when stdin is not a terminal")
	}

	pw, err := prompt.GetPassword("Password", os.Stdout)
	if err != nil {
		return in, err
	}
	defer common.WipeByteArray(pw)

	confirm, err := prompt.GetPassword("Password (again)", os.Stdout)
	if err != nil {
		return in, err
	}
	defer common.WipeByteArray(confirm)

	if string(pw) != string(confirm) {
		return in, errors.New("passwords do not match")
	}
	in.Password = string(pw)
	return in, nil
}
