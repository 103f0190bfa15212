package main

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/storage"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	Colours        bool   `envconfig:"INSPECT_COLOURS" default:"true"`
}

// Exit codes, same convention as the relay.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
	}
	os.Exit(code)
}

// run prints one page of a conversation straight from the badger directory.
// The relay may keep running: the DB is opened read-only.
func run(args []string, out io.Writer) (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dbPath := flags.String("db", config.BadgerFilepath, "Path to badger DB")
	userA := flags.String("a", "", "First participant")
	userB := flags.String("b", "", "Second participant")
	limit := flags.Int("limit", 20, "Messages per page")
	before := flags.String("before", "", "Cursor returned by a previous page")
	if err := flags.Parse(args); err != nil {
		return exitConfig, err
	}

	cmd := chat.GetHistoryCommand{UserA: chat.UserID(*userA), UserB: chat.UserID(*userB), Limit: *limit}
	if *before != "" {
		cmd.Before = lo.ToPtr(chat.Cursor(*before))
	}
	if err := chat.Validate(cmd); err != nil {
		return exitConfig, err
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		return exitRuntime, fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()

	repository := storage.NewMessageRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
	messages, next, err := repository.GetMessages(cmd.ChannelID(), cmd.Limit, cmd.Before)
	if err != nil {
		return exitRuntime, err
	}

	header := fmt.Sprintf("  ====== %s (%d messages) ======", cmd.ChannelID(), len(messages))
	if config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Fprintln(out, header)

	render(out, messages)

	if next != nil {
		footer := fmt.Sprintf("older messages: -before %s", next)
		if config.Colours {
			footer = color.FgYellow.Render(footer)
		}
		fmt.Fprintln(out, footer)
	}
	return exitOK, nil
}

func render(w io.Writer, messages []chat.Message) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Sent at", "From", "To", "Text", "ID"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, msg := range messages {
		id := msg.ID.String()
		table.Append([]string{
			msg.SentAt.Format("2006-01-02 15:04:05"),
			msg.Sender.String(),
			msg.Receiver.String(),
			msg.Text,
			id[:8],
		})
	}
	table.Render()
}
