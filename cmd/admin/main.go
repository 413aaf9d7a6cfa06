// Command admin manages staff and blocked accounts from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"classifieds/internal/access"
	"classifieds/internal/cache"
	"classifieds/internal/config"
	"classifieds/internal/database"
	"classifieds/internal/events"
	"classifieds/internal/models"
	"classifieds/internal/repository"
	"classifieds/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// services are what the subcommands operate on.
type services struct {
	users      *service.UserService
	moderation *service.ModerationService
	publisher  events.Publisher
}

func (s *services) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	_ = cache.Close()
}

type opener func(ctx context.Context) (*services, error)

func newServices(db *gorm.DB, publisher events.Publisher) *services {
	userRepo := repository.NewUserRepository(db)
	return &services{
		users:      service.NewUserService(userRepo, nil),
		moderation: service.NewModerationService(repository.NewListingRepository(db), userRepo, nil, publisher),
		publisher:  publisher,
	}
}

func openFromConfig(_ context.Context) (*services, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openServices(cfg)
}

// openServices attaches to the server's Redis as well as its database, so
// users changed here are evicted from the cache the server reads.
func openServices(cfg *config.Config) (*services, error) {
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	cache.InitRedis(cfg.RedisURL)
	return newServices(db, events.New(cfg.NATSURL)), nil
}

// cliActor attributes CLI moderation to the system rather than a user.
var cliActor = &access.Actor{Username: "cli", IsStaff: true}

func newRootCmd(open opener) *cobra.Command {
	var svc *services

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Manage staff and blocked accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			svc = s
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if svc != nil {
				svc.Close()
			}
		},
	}

	setStaff := func(staff bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			user, err := svc.users.SetStaffByUsername(cmd.Context(), args[0], staff)
			if err != nil {
				return err
			}
			verb := "promoted to staff"
			if !staff {
				verb = "demoted from staff"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (ID: %d) %s\n", user.Username, user.ID, verb)
			return nil
		}
	}

	setBlocked := func(blocked bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			user, err := svc.users.ResolveUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			user, err = svc.moderation.SetUserBlocked(cmd.Context(), cliActor, user.ID, blocked)
			if err != nil {
				return err
			}
			state := "blocked"
			if !blocked {
				state = "unblocked"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (ID: %d) %s\n", user.Username, user.ID, state)
			return nil
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "promote <username>",
			Short: "Grant staff access",
			Args:  cobra.ExactArgs(1),
			RunE:  setStaff(true),
		},
		&cobra.Command{
			Use:   "demote <username>",
			Short: "Revoke staff access",
			Args:  cobra.ExactArgs(1),
			RunE:  setStaff(false),
		},
		&cobra.Command{
			Use:   "block <username>",
			Short: "Block a user from creating or changing listings",
			Args:  cobra.ExactArgs(1),
			RunE:  setBlocked(true),
		},
		&cobra.Command{
			Use:   "unblock <username>",
			Short: "Lift a block",
			Args:  cobra.ExactArgs(1),
			RunE:  setBlocked(false),
		},
		&cobra.Command{
			Use:   "list-staff",
			Short: "List staff accounts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				staff, err := svc.users.ListStaff(cmd.Context())
				if err != nil {
					return err
				}
				return printStaff(cmd.OutOrStdout(), staff)
			},
		},
	)
	return root
}

func printStaff(w io.Writer, staff []models.User) error {
	if len(staff) == 0 {
		_, err := fmt.Fprintln(w, "No staff accounts")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tBLOCKED")
	for _, u := range staff {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", u.ID, u.Username, u.Email, u.IsBlocked)
	}
	return tw.Flush()
}

func main() {
	if err := newRootCmd(openFromConfig).ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
