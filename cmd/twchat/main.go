package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/tradewell/twchat/internal/app"
	"github.com/tradewell/twchat/internal/auth"
	"github.com/tradewell/twchat/internal/session"
	"github.com/tradewell/twchat/internal/tui"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "login" {
		runLogin(os.Args[2:])
		return
	}

	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var ui *tui.App
	fxApp := fx.New(
		app.Module(app.Params{SessionName: sessionName}),
		fx.Populate(&ui),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

// runLogin stores a gateway token for a session after checking it parses.
func runLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	sessionFlag := fs.String("session", "", "session name (overrides config default)")
	tokenFlag := fs.String("token", "", "gateway JWT (defaults to TWCHAT_TOKEN)")
	_ = fs.Parse(args)

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("TWCHAT_TOKEN")
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "error: no token given (use --token or TWCHAT_TOKEN)")
		os.Exit(1)
	}

	id, err := auth.ParseIdentity(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := session.WriteToken(sessionName, token); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("logged in as %s (%s), session %q\n", id.User.Name, id.User.ID, sessionName)
}
