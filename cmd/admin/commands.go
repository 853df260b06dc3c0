package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"modchat/backend/internal/api/handler"
	"modchat/backend/internal/chathub"
	"modchat/backend/internal/config"
	"modchat/backend/internal/models"
	"modchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const requestTimeout = 10 * time.Second

// openStore connects the backends enabled in cfg. No migrations are run here.
func openStore(ctx context.Context, cfg *config.Config) (*storage.Service, error) {
	var db *gorm.DB
	if cfg.Postgres.Enabled {
		var err error
		if db, err = gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{}); err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	}
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	return storage.NewStorageService(db, rdb), nil
}

func withStore(fn func(ctx context.Context, s *storage.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if s.Redis != nil {
		defer s.Redis.Close()
	}
	return fn(ctx, s)
}

func banCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "ban [userId]",
		Short: "Ban an identity from connecting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s *storage.Service) error {
				if err := s.BanUser(ctx, args[0], time.Duration(hours)*time.Hour); err != nil {
					return err
				}
				if hours > 0 {
					fmt.Printf("User %s banned for %dh.\n", args[0], hours)
				} else {
					fmt.Printf("User %s banned.\n", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "ban duration in hours (0 = until unbanned)")
	return cmd
}

func unbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unban [userId]",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s *storage.Service) error {
				if err := s.UnbanUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("User %s unbanned.\n", args[0])
				return nil
			})
		},
	}
}

func closeStaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close-stale",
		Short: "Close chat rooms left active by a stopped server",
		Long:  "Marks every active chat room as ended. Run it only while the server is stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, s *storage.Service) error {
				if s.DB == nil {
					return fmt.Errorf("postgres is not configured")
				}
				n, err := chathub.NewRoomAuditor(s, nil, nil).RecoverActiveRooms(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Closed %d room(s).\n", n)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	var addr string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show live counters of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := fetchStats(addr)
			if err != nil {
				return err
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(snap, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "CONNECTIONS\t%d\n", snap.Connections)
			fmt.Fprintf(tw, "USERS\t%d\n", snap.Users)
			fmt.Fprintf(tw, "MODERATORS\t%d\n", snap.Moderators)
			fmt.Fprintf(tw, "FREE MODERATORS\t%d\n", snap.FreeModerators)
			fmt.Fprintf(tw, "ACTIVE PAIRINGS\t%d\n", snap.ActivePairings)
			fmt.Fprintf(tw, "PENDING SEARCHES\t%d\n", snap.PendingSearches)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server base URL")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func fetchStats(addr string) (*chathub.Snapshot, error) {
	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Get(strings.TrimSuffix(addr, "/") + "/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats: unexpected status %s", resp.Status)
	}
	var snap chathub.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &snap, nil
}

func tokenCmd() *cobra.Command {
	var role, name string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [id]",
		Short: "Issue a connection token signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return config.ErrMissingSecret
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := handler.IssueToken(cfg.Auth, models.Principal{ID: args[0], Role: r, Name: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "user or moderator")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
