package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"socialhub/internal/microservices/http-api/models"
	"socialhub/internal/notifyclient"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "Read and manage your notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		unreadOnly, _ := cmd.Flags().GetBool("unread")
		typ, _ := cmd.Flags().GetString("type")

		opts := notifyclient.ListOptions{Page: page, Limit: limit, Type: models.NotificationType(typ)}
		if unreadOnly {
			unread := false
			opts.IsRead = &unread
		}

		api, err := restClient()
		if err != nil {
			return err
		}
		res, err := api.List(cmd.Context(), opts)
		if err != nil {
			return describe(err)
		}

		out := cmd.OutOrStdout()
		if len(res.Notifications) == 0 {
			fmt.Fprintln(out, "No notifications")
			return nil
		}
		fmt.Fprintf(out, "Notifications (page %d/%d, %d total, %d unread)\n", res.Page, max(res.TotalPages, 1), res.Total, res.UnreadCount)
		fmt.Fprintln(out, "─────────────────────────────────────────────────────────")
		for _, n := range res.Notifications {
			printNotification(out, n)
		}
		return nil
	},
}

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show your unread count",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := restClient()
		if err != nil {
			return err
		}
		count, err := api.UnreadCount(cmd.Context())
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", count)
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [notification_id]",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := restClient()
		if err != nil {
			return err
		}
		if err := api.MarkRead(cmd.Context(), id); err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked notification %d as read\n", id)
		return nil
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := restClient()
		if err != nil {
			return err
		}
		if err := api.MarkAllRead(cmd.Context()); err != nil {
			return describe(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All notifications marked as read")
		return nil
	},
}

var notificationsDeleteCmd = &cobra.Command{
	Use:   "delete [notification_id]",
	Short: "Delete a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := restClient()
		if err != nil {
			return err
		}
		if err := api.Delete(cmd.Context(), id); err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted notification %d\n", id)
		return nil
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch notifications live",
	Long: `Connects to the push channel and prints new notifications and connection
state changes as they happen. When push is unavailable the view keeps
updating by polling. Type r and press Enter to reconnect; Ctrl+C exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if settings.Token == "" {
			return errNoToken
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := notifyclient.New(notifyclient.Options{
			APIURL:       settings.APIURL,
			PushURL:      settings.WSURL,
			Token:        settings.Token,
			PollInterval: settings.PollInterval,
			BackoffBase:  settings.BackoffBase,
			BackoffCap:   settings.BackoffCap,
			MaxAttempts:  settings.MaxAttempts,
			OnAuthError: func(error) {
				color.Red("✖ credential rejected, update the token in your config file and press r to retry")
			},
		})
		if err != nil {
			return err
		}
		if err := client.Start(ctx); err != nil {
			return err
		}
		defer client.Close()

		// --token pins the credential; otherwise r picks up a token edited in the file
		pinned := cmd.Flags().Changed("token")
		go func() {
			current := settings.Token
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if !strings.EqualFold(strings.TrimSpace(scanner.Text()), "r") {
					continue
				}
				if !pinned {
					if token := freshToken(cfgFile, current); token != current {
						current = token
						client.SetToken(token)
						color.Yellow("↻ using updated token")
					}
				}
				color.Yellow("↻ reconnecting...")
				client.Reconnect()
			}
		}()

		w := &watcher{out: cmd.OutOrStdout(), seen: map[int64]bool{}}
		for {
			select {
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "\nbye")
				return nil
			case snap, ok := <-client.Changes():
				if !ok {
					return nil
				}
				w.render(snap)
			}
		}
	},
}

// watcher prints only what changed between snapshots
type watcher struct {
	out    io.Writer
	state  notifyclient.ConnectionState
	unread int64
	primed bool
	seen   map[int64]bool
}

func (w *watcher) render(snap notifyclient.Snapshot) {
	if snap.State != w.state {
		w.state = snap.State
		stateColor(snap.State).Fprintf(w.out, "● %s\n", snap.State)
	}

	// newest first; print oldest unseen first
	for i := len(snap.Notifications) - 1; i >= 0; i-- {
		n := snap.Notifications[i]
		if w.seen[n.ID] {
			continue
		}
		w.seen[n.ID] = true
		if w.primed {
			color.New(color.FgCyan, color.Bold).Fprint(w.out, "★ ")
		}
		printNotification(w.out, n)
	}
	if len(snap.Notifications) > 0 {
		w.primed = true
	}

	if snap.UnreadCount != w.unread {
		w.unread = snap.UnreadCount
		color.New(color.FgMagenta).Fprintf(w.out, "  %d unread\n", snap.UnreadCount)
	}
}

func stateColor(s notifyclient.ConnectionState) *color.Color {
	switch s {
	case notifyclient.StateLive:
		return color.New(color.FgGreen)
	case notifyclient.StateConnecting, notifyclient.StateReconnecting:
		return color.New(color.FgYellow)
	case notifyclient.StatePolling:
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgRed)
	}
}

func printNotification(out io.Writer, n models.Notification) {
	marker := "•"
	if n.IsRead {
		marker = " "
	}
	from := n.FromUser.Name
	if from == "" {
		from = n.FromUser.ID
	}
	fmt.Fprintf(out, "%s #%d [%s] %s", marker, n.ID, n.Type, from)
	if n.Message != "" {
		fmt.Fprintf(out, ": %s", n.Message)
	}
	fmt.Fprintf(out, "  (%s)\n", n.CreatedAt.Local().Format("2006-01-02 15:04"))
}

// freshToken re-reads the config file, keeping current when it has no usable token
func freshToken(path, current string) string {
	s, err := LoadSettings(viper.New(), path)
	if err != nil || s.Token == "" {
		return current
	}
	return s.Token
}

var errNoToken = errors.New("no token configured, set token in the config file or pass --token")

func restClient() (*notifyclient.RESTClient, error) {
	if settings.Token == "" {
		return nil, errNoToken
	}
	return notifyclient.NewRESTClient(settings.APIURL, settings.Token, nil), nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid notification ID: %q", arg)
	}
	return id, nil
}

func describe(err error) error {
	switch {
	case errors.Is(err, notifyclient.ErrUnauthorized):
		return errors.New("token rejected by the server, refresh your token")
	case errors.Is(err, notifyclient.ErrNotFound):
		return errors.New("notification not found")
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

func init() {
	notificationsListCmd.Flags().Int("page", 1, "page number")
	notificationsListCmd.Flags().Int("limit", 20, "notifications per page")
	notificationsListCmd.Flags().Bool("unread", false, "only unread notifications")
	notificationsListCmd.Flags().String("type", "", "filter by type (like, comment, follow, message, generic)")

	notificationsCmd.AddCommand(
		notificationsListCmd,
		notificationsUnreadCmd,
		notificationsReadCmd,
		notificationsReadAllCmd,
		notificationsDeleteCmd,
		notificationsWatchCmd,
	)
	rootCmd.AddCommand(notificationsCmd)
}
