// Command authctl administers an ifs-auth database: schema migrations,
// catalog seeding, password hashing and superuser creation.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/bootstrap"
	"github.com/smallbiznis/ifs-auth/internal/database"
	"github.com/smallbiznis/ifs-auth/internal/password"
	"github.com/smallbiznis/ifs-auth/internal/repository"
)

const usage = `Usage: authctl <command> [flags]

Commands:
  migrate            apply pending schema migrations
  seed               upsert built-in permissions and roles
  hash-password      print an argon2id hash (reads stdin without --password)
  create-superuser   create an admin superuser unless the username exists

Run "authctl <command> --help" for command flags.
`

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command, rest := args[0], args[1:]

	flagSet := pflag.NewFlagSet("authctl "+command, pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	databaseURL := flagSet.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	verbose := flagSet.BoolP("verbose", "v", false, "log at debug level")

	switch command {
	case "migrate":
		if err := parse(flagSet, rest); err != nil {
			return err
		}
		logger, err := newLogger(*verbose)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		if *databaseURL == "" {
			return fmt.Errorf("--database-url or DATABASE_URL is required")
		}
		return database.Migrate(*databaseURL, logger)

	case "seed":
		if err := parse(flagSet, rest); err != nil {
			return err
		}
		return withRepositories(ctx, *databaseURL, *verbose, func(_ repository.UserRepository, roles repository.RoleRepository, logger *zap.Logger) error {
			return bootstrap.SeedCatalog(ctx, roles, logger)
		})

	case "hash-password":
		plain := flagSet.String("password", "", "password to hash")
		if err := parse(flagSet, rest); err != nil {
			return err
		}
		return hashPassword(*plain, stdin, stdout)

	case "create-superuser":
		username := flagSet.String("username", "", "login name")
		email := flagSet.String("email", "", "email address (defaults to <username>@localhost)")
		plain := flagSet.String("password", "", "password (reads stdin when empty)")
		nodeID := flagSet.Int64("node", 1, "snowflake node id for the new user id")
		if err := parse(flagSet, rest); err != nil {
			return err
		}
		secret, err := passwordOrStdin(*plain, stdin)
		if err != nil {
			return err
		}
		node, err := snowflake.NewNode(*nodeID)
		if err != nil {
			return fmt.Errorf("snowflake node: %w", err)
		}
		return withRepositories(ctx, *databaseURL, *verbose, func(users repository.UserRepository, roles repository.RoleRepository, logger *zap.Logger) error {
			user, created, err := bootstrap.EnsureSuperuser(ctx, users, roles, node, bootstrap.Superuser{
				Username: *username,
				Email:    *email,
				Password: secret,
			}, logger)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(stdout, "user %q already exists (id %d)\n", user.Username, user.ID)
				return nil
			}
			fmt.Fprintf(stdout, "created superuser %q (id %d)\n", user.Username, user.ID)
			return nil
		})

	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil

	default:
		return errUsage
	}
}

func parse(flagSet *pflag.FlagSet, args []string) error {
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return nil
}

func hashPassword(plain string, stdin io.Reader, stdout io.Writer) error {
	secret, err := passwordOrStdin(plain, stdin)
	if err != nil {
		return err
	}
	if err := password.ValidatePolicy(secret); err != nil {
		return err
	}
	hash, err := password.Hash(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func passwordOrStdin(plain string, stdin io.Reader) (string, error) {
	if plain != "" {
		return plain, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}

func withRepositories(ctx context.Context, databaseURL string, verbose bool, fn func(repository.UserRepository, repository.RoleRepository, *zap.Logger) error) error {
	if databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	logger, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pool, err := database.OpenPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := database.SQLDB(pool)
	defer db.Close()

	return fn(repository.NewPostgresUserRepo(db), repository.NewPostgresRoleRepo(db), logger)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
