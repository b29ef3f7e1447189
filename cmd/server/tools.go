package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"inspectionDispatch/internal/auth"
	"inspectionDispatch/internal/config"
	"inspectionDispatch/internal/db"
	"inspectionDispatch/internal/dispatch"
	"inspectionDispatch/internal/geo"
	"inspectionDispatch/internal/logger"
)

func newMigrateCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer d.Close()
			v, err := db.Version(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %04d\n", v)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer d.Close()
			v, err := db.RollbackLast(d)
			if err != nil {
				return err
			}
			if v == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back version %04d\n", v)
			return nil
		},
	})
	return cmd
}

func newCandidatesCmd(cfgPath *string) *cobra.Command {
	var requestID int64
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List available inspectors by distance to a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID <= 0 {
				return fmt.Errorf("--request is required")
			}
			cfg, err := config.LoadWithDefaults(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer d.Close()

			svc := dispatch.New(d,
				dispatch.WithLogger(logger.NopLogger{}),
				dispatch.WithMaxDistanceKm(cfg.Dispatch.MaxDistanceKm),
				dispatch.WithDefaultRegion(cfg.Dispatch.DefaultRegion),
			)
			cands, err := svc.ListAvailableWithDistance(cmd.Context(), requestID)
			if err != nil {
				return err
			}
			printCandidates(cmd.OutOrStdout(), cands, svc.MaxDistanceKm())
			return nil
		},
	}
	cmd.Flags().Int64VarP(&requestID, "request", "r", 0, "inspection request id")
	return cmd
}

func printCandidates(out io.Writer, cands []dispatch.Candidate, limitKm float64) {
	if len(cands) == 0 {
		fmt.Fprintln(out, "no available inspectors")
		return
	}
	ok := color.New(color.FgGreen)
	far := color.New(color.FgRed)
	unknown := color.New(color.FgYellow)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINSPECTOR\tREGION\tADDRESS\tDISTANCE")
	for _, c := range cands {
		dist := unknown.Sprint("unknown")
		if c.DistanceKm != nil {
			painter := ok
			if !c.WithinLimit {
				painter = far
			}
			dist = painter.Sprintf("%.2f km", *c.DistanceKm)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.Inspector.ID, c.Inspector.FullName, c.Location.Region, c.Location.Address, dist)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "limit: %.0f km\n", limitKm)
}

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance <lat1> <lng1> <lat2> <lng2>",
		Short: "Print the great-circle distance between two points",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pts [4]float64
			for i, a := range args {
				v, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				pts[i] = v
			}
			if !geo.ValidCoordinates(pts[0], pts[1]) || !geo.ValidCoordinates(pts[2], pts[3]) {
				return fmt.Errorf("coordinates out of range")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f km\n", geo.RoundKm(geo.DistanceKm(pts[0], pts[1], pts[2], pts[3])))
			return nil
		},
	}
}

func newTokenCmd(cfgPath *string) *cobra.Command {
	var (
		userID int64
		name   string
		kind   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tok, err := auth.IssueToken(cfg.Auth.JWTSecret, userID, name, kind, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&kind, "kind", "dispatcher", "role: dispatcher, inspector, client or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
