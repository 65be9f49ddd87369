package segmentcmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	segmentsrepo "github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/repo"
	segmentsservice "github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/service"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/logging"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

// Command groups segment maintenance helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Segment utilities (apply)",
	}

	cmd.AddCommand(applyCommand())
	return cmd
}

func applyCommand() *cobra.Command {
	var (
		databaseURL string
		segmentID   string
		actorID     string
		clearOthers bool
	)

	c := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile a segment's assignments against its rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			segID, err := uuid.Parse(segmentID)
			if err != nil {
				return fmt.Errorf("invalid segment-id uuid: %w", err)
			}
			actor, err := uuid.Parse(actorID)
			if err != nil {
				return fmt.Errorf("invalid actor-id uuid: %w", err)
			}

			logger, err := logging.NewLogger(logging.Config{Component: "cli"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			segmentStore, err := persistence.NewSegmentStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init segment store: %w", err)
			}
			prospectStore, err := persistence.NewProspectStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init prospect store: %w", err)
			}
			offerStore, err := persistence.NewOfferStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init offer store: %w", err)
			}
			membershipStore, err := persistence.NewMembershipStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init membership store: %w", err)
			}

			// Same scope derivation as the API: membership is read fresh, so
			// an organization actor reconciles the whole tenant.
			orgID, err := membershipStore.OrganizationFor(ctx, actor)
			if err != nil {
				return fmt.Errorf("resolve membership: %w", err)
			}
			sc := scope.Personal(actor)
			if orgID != nil {
				sc = scope.Scoped(actor, *orgID)
			}

			svc := segmentsservice.New(
				segmentsrepo.NewPostgresRepository(segmentStore),
				prospectStore,
				offerStore,
				nil,
				segmentsservice.DeletePolicy{},
				logger,
			)

			summary, err := svc.Apply(ctx, sc, segID, segmentsservice.ApplyOptions{ClearOthers: clearOthers})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "matched=%d reassigned=%d unassigned=%d\n",
				summary.MatchedCount, summary.ReassignedCount, summary.UnassignedCount)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&segmentID, "segment-id", "", "segment to reconcile (UUID)")
	c.Flags().StringVar(&actorID, "actor-id", "", "acting user (UUID); determines tenant scope")
	c.Flags().BoolVar(&clearOthers, "clear-others", false, "unassign prospects no longer matching before assigning")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("segment-id")
	_ = c.MarkFlagRequired("actor-id")

	return c
}
