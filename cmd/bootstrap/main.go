// Command bootstrap creates an administrator account directly in the
// database. It is meant for first-time setup, before any user exists that
// could be promoted through the API.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/server/config"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
	"github.com/censusconnect/authserver/internal/server/security"
	"github.com/censusconnect/authserver/pkg/validator"
)

func getSimpleText(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Println(prompt)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func getPassword() ([]byte, error) {
	fmt.Println("-Enter password")
	return term.ReadPassword(int(os.Stdin.Fd()))
}

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	reader := bufio.NewReader(os.Stdin)

	username, err := getSimpleText(reader, "-Enter admin username")
	if err != nil {
		log.Fatalf("reading username: %v", err)
	}
	email, err := getSimpleText(reader, "-Enter admin email")
	if err != nil {
		log.Fatalf("reading email: %v", err)
	}
	password, err := getPassword()
	if err != nil {
		log.Fatalf("reading password: %v", err)
	}
	defer common.WipeByteArray(password)

	v := validator.New()
	if err := v.ValidateUsername(username); err != nil {
		log.Fatalf("%v", err)
	}
	if err := v.ValidateEmail(email); err != nil {
		log.Fatalf("%v", err)
	}
	if err := v.ValidatePassword(string(password)); err != nil {
		log.Fatalf("%v", err)
	}

	db, err := dbx.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		log.Fatalf("repository init error: %v", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	hash, err := security.NewPasswordHasher().Hash(string(password))
	if err != nil {
		log.Fatalf("hashing password: %v", err)
	}

	user, err := rm.Users(db).Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      true,
	})
	if err != nil {
		log.Fatalf("creating admin: %v", err)
	}

	fmt.Printf("admin user %q created with id %d\n", user.Username, user.ID)
}
