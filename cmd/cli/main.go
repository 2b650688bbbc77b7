package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/jtich40/event-driven-integration-demo/internal/app"
	"github.com/jtich40/event-driven-integration-demo/internal/events"
	"github.com/jtich40/event-driven-integration-demo/pkg/config"
	"github.com/jtich40/event-driven-integration-demo/pkg/database"
	"github.com/jtich40/event-driven-integration-demo/pkg/logging"
	"github.com/jtich40/event-driven-integration-demo/pkg/middleware"
	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/rabbitmq"
	"github.com/jtich40/event-driven-integration-demo/pkg/store"
)

// ANSI
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"
	Green = "\033[32m"
	Red   = "\033[31m"
)

const usage = `usage: cli [-api=<url>] <command> [<args>]

API commands
   create-user <name> <email>   Create a user through the intake endpoint
   users                        List users, newest first
   get-user <id>                Show one user

ERP commands
   processed                    List ERP audit rows from the record store
                                (STORE_DRIVER, DATABASE_URL)
   publish-raw <payload|@file>  Publish a raw payload as a user.created message
                                (RABBITMQ_URL)

Other commands
   help                         Display this message
`

var apiFlag = flag.String("api", "http://localhost:8080", "intake endpoint base URL")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "missing command\n\n")
		fmt.Print(usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := &apiClient{base: strings.TrimRight(*apiFlag, "/"), http: &http.Client{Timeout: 10 * time.Second}}
	out := os.Stdout

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "create-user":
		if len(rest) != 2 {
			err = errors.New("usage: create-user <name> <email>")
			break
		}
		err = client.createUser(ctx, out, rest[0], rest[1])
	case "users":
		err = client.listUsers(ctx, out)
	case "get-user":
		if len(rest) != 1 {
			err = errors.New("usage: get-user <id>")
			break
		}
		err = client.getUser(ctx, out, rest[0])
	case "processed":
		err = withStorage(ctx, func(s *app.Storage) error {
			return printProcessed(ctx, out, s.Processed)
		})
	case "publish-raw":
		if len(rest) != 1 {
			err = errors.New("usage: publish-raw <payload|@file>")
			break
		}
		err = publishRaw(ctx, out, rest[0])
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		fmt.Print(usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "  %s[x] %s: %v%s\n", Red, args[0], err, Reset)
		os.Exit(1)
	}
}

// apiClient talks to the intake endpoint.
type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.CorrelationIDHeader, "cli-"+uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func (c *apiClient) createUser(ctx context.Context, out io.Writer, name, email string) error {
	body, err := json.Marshal(models.CreateUserRequest{Name: name, Email: email})
	if err != nil {
		return err
	}

	status, data, err := c.do(ctx, http.MethodPost, "/users", bytes.NewReader(body))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(data)))
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(out, "  %s[ok] created%s %s\n", Green, Reset, user.ID)
	return nil
}

func (c *apiClient) listUsers(ctx context.Context, out io.Writer) error {
	status, data, err := c.do(ctx, http.MethodGet, "/users", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(data)))
	}

	var users []models.User
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  %sID\tNAME\tEMAIL\tCREATED%s\n", Bold, Reset)
	for _, u := range users {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.CreatedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s%d users%s\n", Dim, len(users), Reset)
	return nil
}

func (c *apiClient) getUser(ctx context.Context, out io.Writer, id string) error {
	status, data, err := c.do(ctx, http.MethodGet, "/users/"+id, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("user %s not found", id)
	default:
		return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(data)))
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(out, "  %sid:%s      %s\n", Dim, Reset, u.ID)
	fmt.Fprintf(out, "  %sname:%s    %s\n", Dim, Reset, u.Name)
	fmt.Fprintf(out, "  %semail:%s   %s\n", Dim, Reset, u.Email)
	fmt.Fprintf(out, "  %screated:%s %s\n", Dim, Reset, u.CreatedAt.Format(time.RFC3339))
	return nil
}

func withStorage(ctx context.Context, fn func(*app.Storage) error) error {
	cfg, err := config.LoadForService("ERP")
	if err != nil {
		return err
	}
	logger, err := logging.NewWithWriter("warn", os.Stderr)
	if err != nil {
		return err
	}
	if cfg.StoreDriver == "memory" {
		return errors.New("the memory store is private to each process; set STORE_DRIVER to postgres or sqlite")
	}

	opts := database.ConnectOptions{Attempts: 3, Backoff: time.Second}
	s, err := app.OpenStorage(ctx, cfg, "erp", opts, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func printProcessed(ctx context.Context, out io.Writer, audit store.Table[models.ProcessedEventRecord]) error {
	rows, err := audit.Scan(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  %sEVENT_ID\tUSER_ID\tEMAIL\tEXTERNAL_ID\tSTATUS\tPROCESSED_AT%s\n", Bold, Reset)
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s%s%s\t%s\n",
			r.EventID, r.UserID, r.UserEmail, r.ExternalID,
			Green, r.Status, Reset, r.ProcessedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s%d processed events%s\n", Dim, len(rows), Reset)
	return nil
}

// readPayload returns arg itself, or the contents of the file it names when
// prefixed with @.
func readPayload(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(arg), nil
}

func publishRaw(ctx context.Context, out io.Writer, arg string) error {
	payload, err := readPayload(arg)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewWithWriter("warn", os.Stderr)
	if err != nil {
		return err
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	pub, err := rabbitmq.NewPublisher(conn, cfg.PublishTimeout, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	return sendRaw(ctx, out, pub, payload)
}

func sendRaw(ctx context.Context, out io.Writer, sender events.Sender, payload []byte) error {
	msg := rabbitmq.Message{
		RoutingKey:    events.RoutingKeyUserCreated,
		MessageID:     uuid.New().String(),
		CorrelationID: "cli-" + uuid.New().String(),
		Type:          models.EventTypeUserCreated,
		Body:          payload,
	}
	if err := sender.Publish(ctx, msg); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s[ok] published%s %s (%d bytes)\n", Green, Reset, msg.MessageID, len(payload))
	return nil
}
