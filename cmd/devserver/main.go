package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-session/internal/config"
	"github.com/jrsteele09/go-portal-session/server"
	"github.com/jrsteele09/go-portal-session/users"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if c.GetEnv() == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	userRepo := users.NewInMemoryRepo()
	if err := seedUsers(userRepo); err != nil {
		return fmt.Errorf("seedUsers: %w", err)
	}

	signingKey := []byte(config.GetEnv("SIGNING_KEY", "dev-signing-key"))
	apiServer, err := server.New(c, userRepo, signingKey, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: apiServer.Handler()}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// seedUsers loads the demo accounts. All passwords are "password123".
func seedUsers(repo users.Repo) error {
	hash, err := users.HashPassword("password123")
	if err != nil {
		return err
	}

	seeds := []*users.StoredUser{
		{
			User: users.User{
				ID:       uuid.NewString(),
				Username: "admin",
				Email:    "admin@example.com",
				Role:     users.RoleAdmin,
				Verified: true,
				Admin:    true,
				Active:   true,
			},
			PasswordHash: hash,
		},
		{
			User: users.User{
				ID:       uuid.NewString(),
				Username: "user",
				Email:    "user@example.com",
				Role:     users.RoleUser,
				Verified: true,
				Active:   true,
			},
			PasswordHash: hash,
		},
		{
			User: users.User{
				ID:       uuid.NewString(),
				Username: "unverified",
				Email:    "unverified@example.com",
				Role:     users.RoleUser,
				Active:   true,
			},
			PasswordHash: hash,
		},
	}

	for _, seed := range seeds {
		if err := repo.Upsert(seed); err != nil {
			return err
		}
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
