package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rrens/onboarding-sync/internal/client"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/security"
)

// ChatCmd runs an interactive conversation on stdin/stdout
type ChatCmd struct {
	Session string `long:"session" description:"Session id to continue; a new one is created when empty"`
}

// RecoverCmd replays the durability queue of one session
type RecoverCmd struct {
	Session string `long:"session" required:"true" description:"Session id"`
}

// StatusCmd prints the server's view of a session
type StatusCmd struct {
	Session string `long:"session" required:"true" description:"Session id"`
}

// TokenCmd signs an access token with the server secret
type TokenCmd struct {
	Secret string        `long:"secret" env:"JWT_SECRET" required:"true" description:"Server JWT secret"`
	User   string        `long:"user" required:"true" description:"User id"`
	Email  string        `long:"email" description:"User email"`
	TTL    time.Duration `long:"ttl" default:"24h" description:"Token lifetime"`
}

func (c *TokenCmd) Execute([]string) error {
	token, err := security.NewJWTManager(c.Secret, c.TTL).GenerateAccessToken(c.User, c.Email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func (c *StatusCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	view, err := apiClient().GetSession(ctx, c.Session)
	if err != nil {
		return explain(err)
	}
	printView(view)
	return nil
}

func (c *RecoverCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := apiClient()
	queue, closeQueue, err := openQueue(ctx, api)
	if err != nil {
		return err
	}
	defer closeQueue()

	report, err := queue.RecoverPending(ctx, c.Session, func(p client.PendingCommit, r *domain.CommitResult) {
		fmt.Printf("recovered %s (%s, version %d)\n", p.MessageID, r.Status, r.Version)
	})
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func (c *ChatCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := apiClient()
	queue, closeQueue, err := openQueue(ctx, api)
	if err != nil {
		return err
	}
	defer closeQueue()

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	view, err := api.CreateSession(ctx, sessionID)
	if err != nil {
		return explain(err)
	}
	printView(view)

	conv := client.NewConversation(api, queue, view)
	report, err := conv.Recover(ctx, nil)
	if err != nil {
		return err
	}
	printReport(report)

	fmt.Println("Type your answer and press enter. /status shows progress, /quit leaves.")
	input := bufio.NewScanner(os.Stdin)
	input.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Print("> ")
		if !input.Scan() {
			return input.Err()
		}
		line := strings.TrimSpace(input.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/status":
			if err := conv.Refresh(ctx); err != nil {
				fmt.Println(explain(err))
				continue
			}
			fmt.Printf("Step %d, version %d\n", conv.Stage(), conv.Version())
			continue
		}

		res, err := conv.Send(ctx, line, func(text string) error {
			fmt.Print(text)
			return nil
		})
		fmt.Println()
		if res != nil {
			printReport(res.Earlier)
		}
		if err != nil {
			fmt.Println(explain(err))
			if errors.Is(err, domain.ErrAlreadyCompleted) {
				return nil
			}
			continue
		}
		switch {
		case res.Pending:
			fmt.Println("(saved locally, will sync when the server is reachable)")
		case res.Result.Completed:
			fmt.Println("Onboarding complete. Thank you!")
			return nil
		case res.Result.StageAdvanced:
			fmt.Printf("-- moving on to step %d (%d%% overall) --\n", res.Result.CurrentStage, res.Result.OverallProgress)
		}
	}
}

func apiClient() *client.APIClient {
	return client.NewAPIClient(opts.Server, opts.Token, nil)
}

func openQueue(ctx context.Context, api *client.APIClient) (*client.Queue, func(), error) {
	path := opts.Queue
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, nil, fmt.Errorf("locate config dir: %w", err)
		}
		path = filepath.Join(dir, "onboard", "pending.db")
	}

	store, err := client.OpenSQLiteStore(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return client.NewQueue(store, api, client.QueueOptions{}), func() { store.Close() }, nil
}

func printView(view *domain.SessionView) {
	fmt.Printf("Session %s: %s (%s), %s, %d%%\n",
		view.SessionID, view.Progress.Text, view.StageName, view.Status, view.OverallProgress)
}

func printReport(report client.RecoveryReport) {
	if report.Recovered > 0 {
		fmt.Printf("Synced %d saved exchange(s).\n", report.Recovered)
	}
	for _, p := range report.Conflicted {
		fmt.Printf("This answer was superseded by a change elsewhere, please resend it:\n  %s\n", p.UserMessage)
	}
	if report.Retrying > 0 {
		fmt.Printf("%d exchange(s) are still waiting to sync.\n", report.Retrying)
	}
	for _, p := range report.Exhausted {
		fmt.Printf("Could not sync this answer, please resend it:\n  %s\n", p.UserMessage)
	}
}

// explain turns an error into the message shown to the user
func explain(err error) error {
	return errors.New(domain.PlainMessage(domain.ErrorCode(err)))
}
