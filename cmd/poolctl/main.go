// Command poolctl is the operator tool for the cab-pool service: schema
// migration, dev sessions and scoring diagnostics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cabpool/internal/app"
	"cabpool/internal/config"
	"cabpool/internal/domain"
	"cabpool/internal/geo"
	internalRedis "cabpool/internal/redis"
	"cabpool/internal/repository/postgres"
	"cabpool/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Operate the campus cab-pool service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(), newSessionCmd(), newDistanceCmd(), newScoreCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema (DB_* environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg := config.LoadDatabase()
			db, err := app.NewDatabase(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s@%s\n", cfg.DBName, cfg.Host)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Migration timeout")
	return cmd
}

type sessionFlags struct {
	token string
	user  string
	role  string
	ttl   time.Duration
}

func newSessionCmd() *cobra.Command {
	var flags sessionFlags
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Store a bearer token session in Redis for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sess, ttl, err := flags.session(cfg.Redis.SessionTTL)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, err := app.NewRedisClient(ctx, cfg.Redis, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := internalRedis.NewSessionStore(client).Put(ctx, flags.token, sess, ttl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s -> %s (%s) for %s\n", flags.token, sess.UserID, sess.Role, ttl)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.token, "token", "", "Bearer token")
	f.StringVar(&flags.user, "user", "", "User id the token resolves to")
	f.StringVar(&flags.role, "role", string(domain.UserRoleUser), "Role: user or admin")
	f.DurationVar(&flags.ttl, "ttl", 0, "Session lifetime (default REDIS_SESSION_TTL)")
	return cmd
}

// session validates the flags and resolves the lifetime. An unset --ttl
// falls back to defaultTTL.
func (f sessionFlags) session(defaultTTL time.Duration) (internalRedis.Session, time.Duration, error) {
	if f.token == "" || f.user == "" {
		return internalRedis.Session{}, 0, errors.New("--token and --user are required")
	}
	role := domain.UserRole(f.role)
	if role != domain.UserRoleUser && role != domain.UserRoleAdmin {
		return internalRedis.Session{}, 0, fmt.Errorf("unknown role %q", f.role)
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = defaultTTL
	}
	if ttl <= 0 {
		return internalRedis.Session{}, 0, errors.New("--ttl must be positive")
	}
	return internalRedis.Session{UserID: f.user, Role: role}, ttl, nil
}

func newDistanceCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Print the great-circle distance between two lng,lat points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := parseCoordinate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			b, err := parseCoordinate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.1f m\n", geo.DistanceMeters(a, b))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Origin as lng,lat")
	cmd.Flags().StringVar(&to, "to", "", "Destination as lng,lat")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

type scoreFlags struct {
	pickup, drop, at, gender                string
	candPickup, candDrop, candAt, candGender string
}

func newScoreCmd() *cobra.Command {
	var flags scoreFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one pool candidate against a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd.OutOrStdout(), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.pickup, "pickup", "", "Query pickup as lng,lat")
	f.StringVar(&flags.drop, "drop", "", "Query drop as lng,lat")
	f.StringVar(&flags.at, "at", "", "Query time (RFC 3339)")
	f.StringVar(&flags.gender, "gender", "", "Query gender preference")
	f.StringVar(&flags.candPickup, "candidate-pickup", "", "Candidate pickup as lng,lat")
	f.StringVar(&flags.candDrop, "candidate-drop", "", "Candidate drop as lng,lat")
	f.StringVar(&flags.candAt, "candidate-at", "", "Candidate time (RFC 3339)")
	f.StringVar(&flags.candGender, "candidate-gender", "Any", "Candidate gender preference")
	for _, name := range []string{"pickup", "drop", "at", "candidate-pickup", "candidate-drop", "candidate-at"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runScore(w io.Writer, flags scoreFlags) error {
	var errs []error
	coord := func(name, v string) domain.Coordinate {
		c, err := parseCoordinate(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", name, err))
		}
		return c
	}
	when := func(name, v string) time.Time {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", name, err))
		}
		return t
	}

	q := service.MatchQuery{
		Pickup:          domain.Place{Coord: coord("pickup", flags.pickup)},
		Drop:            domain.Place{Coord: coord("drop", flags.drop)},
		DateTime:        when("at", flags.at),
		PreferredGender: domain.GenderPreference(flags.gender),
	}
	candidate := &domain.PoolRequest{
		ID:              "candidate",
		Pickup:          domain.Place{Coord: coord("candidate-pickup", flags.candPickup)},
		Drop:            domain.Place{Coord: coord("candidate-drop", flags.candDrop)},
		DateTime:        when("candidate-at", flags.candAt),
		PreferredGender: domain.GenderPreference(flags.candGender),
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}

	matches := service.ScorePoolCandidates(q, []*domain.PoolRequest{candidate}, 0)
	s := matches[0].Score
	fmt.Fprintf(w, "matchScore      %.2f\n", s.MatchScore)
	fmt.Fprintf(w, "pickupDistance  %.1f m\n", s.PickupDistance)
	fmt.Fprintf(w, "dropDistance    %.1f m\n", s.DropDistance)
	fmt.Fprintf(w, "timeDiffMinutes %.1f\n", s.TimeDiffMinutes)
	return nil
}

// parseCoordinate reads "lng,lat", the same order the HTTP API uses.
func parseCoordinate(s string) (domain.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return domain.Coordinate{}, fmt.Errorf("expected lng,lat, got %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	c := domain.Coordinate{Lng: lng, Lat: lat}
	if !c.Valid() {
		return domain.Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return c, nil
}
