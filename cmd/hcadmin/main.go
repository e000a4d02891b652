// Command hcadmin provisions and revokes admin portal accounts.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"healthconnect/pkg/store"
)

// connectFunc opens the stores a command needs. The returned cleanup closes them.
type connectFunc func(opts connectOptions, out io.Writer) (*provisioner, func(), error)

type connectOptions struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RevokeTTL     time.Duration
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd(connectStores).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(connect connectFunc) *cobra.Command {
	opts := connectOptions{}
	rootCmd := &cobra.Command{
		Use:          "hcadmin",
		Short:        "Manage HealthConnect admin accounts",
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres DSN")
	flags.StringVar(&opts.RedisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address for session revocation")
	flags.StringVar(&opts.RedisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")
	flags.DurationVar(&opts.RevokeTTL, "revoke-ttl", 24*time.Hour, "how long a revocation cutoff is kept; at least the session TTL")

	rootCmd.AddCommand(createAdminCmd(&opts, connect))
	rootCmd.AddCommand(revokeAdminCmd(&opts, connect))
	return rootCmd
}

func createAdminCmd(opts *connectOptions, connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account or grant admin access to an existing admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			p, cleanup, err := connect(*opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer cleanup()
			_, err = p.createAdmin(email, password, name)
			return err
		},
	}
	cmd.Flags().String("email", "", "admin email")
	cmd.Flags().String("password", "", "initial password")
	cmd.Flags().String("name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func revokeAdminCmd(opts *connectOptions, connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-admin",
		Short: "Remove admin access and revoke the account's sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			p, cleanup, err := connect(*opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer cleanup()
			return p.revokeAdmin(email)
		},
	}
	cmd.Flags().String("email", "", "admin email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func connectStores(opts connectOptions, out io.Writer) (*provisioner, func(), error) {
	if opts.DatabaseURL == "" {
		return nil, nil, errors.New("database url required (--database-url or DATABASE_URL)")
	}
	db, err := store.NewGormStore(opts.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := &provisioner{accounts: db, out: out, now: time.Now}
	cleanup := func() { _ = db.Close() }
	if opts.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, Password: opts.RedisPassword})
		p.revoker = store.NewRedisTokenRevoker(client, opts.RevokeTTL)
		cleanup = func() {
			_ = client.Close()
			_ = db.Close()
		}
	} else {
		fmt.Fprintln(out, "warning: no redis address; existing sessions stay valid until they expire")
	}
	return p, cleanup, nil
}
