package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"khwaaish/pkg/auth"
	"khwaaish/pkg/chat"
	"khwaaish/pkg/chatlog"
	"khwaaish/pkg/config"
	"khwaaish/pkg/logger"
	"khwaaish/pkg/render"
	"khwaaish/pkg/retailers"
)

const (
	chatPrompt     = "you> "
	maxLoginTries  = 3
	newChatDivider = "----- new chat -----"
)

// lineReader is the part of readline the chat loop needs.
type lineReader interface {
	Readline() (string, error)
	ReadPassword(prompt string) ([]byte, error)
	SetPrompt(prompt string)
}

func chatCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	retailer := cfg.Chat.DefaultRetailer
	if len(os.Args) > 2 {
		retailer = os.Args[2]
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          chatPrompt,
		HistoryFile:     cfg.HistoryFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error starting terminal: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	// Log lines would interleave with the transcript; the file sink still gets them.
	if !config.IsDebugMode() {
		logger.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := runChat(ctx, cfg, rl, rl.Stdout(), retailer); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// runChat logs in, starts the retailer flow and feeds lines to the engine
// until EOF or /quit.
func runChat(ctx context.Context, cfg *config.Config, in lineReader, out io.Writer, retailer string) error {
	engine := chat.NewEngine(uuid.NewString(), chatlog.NewLog(), chat.NewFactory(cfg))
	engine.SetChoices(retailers.Enabled(cfg))
	term := render.NewTerminal(out)

	engine.Log().Subscribe(func(m chatlog.Message) {
		if m.Role == chatlog.RoleUser {
			return
		}
		term.Print(m, engine.Cart().Quantity)
	})
	engine.Log().SubscribeClear(func() {
		fmt.Fprintln(out, newChatDivider)
	})

	state, err := terminalLogin(ctx, auth.FromConfig(cfg), in, out)
	if err != nil {
		return err
	}
	engine.SetAuth(state)
	fmt.Fprintf(out, "%s Logged in. Type /help for commands, /quit to leave.\n", logo)

	if err := engine.SelectRetailer(retailer); err != nil {
		logger.DebugCF("chat", "Retailer selection failed", map[string]interface{}{
			logger.FieldRetailer: retailer,
			logger.FieldError:    err.Error(),
		})
	}

	for {
		line, err := readAnswer(engine, in)
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		if err := engine.Handle(ctx, line); err != nil {
			logger.DebugCF("chat", "Input returned error", map[string]interface{}{
				logger.FieldChatID: engine.ChatID(),
				logger.FieldError:  err.Error(),
			})
		}
	}
}

// readAnswer hides the echo when the open step is asking for an OTP or UPI id.
func readAnswer(engine *chat.Engine, in lineReader) (string, error) {
	if ctrl := engine.Controller(); ctrl != nil {
		if field, ok := ctrl.Pending(); ok && chat.Sensitive(field.Name) {
			secret, err := in.ReadPassword(field.Label + ": ")
			return string(secret), err
		}
	}
	return in.Readline()
}

func terminalLogin(ctx context.Context, authn auth.Authenticator, in lineReader, out io.Writer) (auth.State, error) {
	if _, open := authn.(auth.OpenAuthenticator); open {
		return authn.Authenticate(ctx, os.Getenv("USER"), "")
	}

	defer in.SetPrompt(chatPrompt)
	for attempt := 1; attempt <= maxLoginTries; attempt++ {
		in.SetPrompt("email: ")
		email, err := in.Readline()
		if err != nil {
			return auth.State{}, err
		}
		password, err := in.ReadPassword("password: ")
		if err != nil {
			return auth.State{}, err
		}
		state, err := authn.Authenticate(ctx, email, string(password))
		if err == nil {
			return state, nil
		}
		fmt.Fprintf(out, "✗ %v (%d/%d)\n", err, attempt, maxLoginTries)
	}
	return auth.State{}, auth.ErrInvalidCredentials
}
