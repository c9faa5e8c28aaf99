package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/schoolms/portal-client/internal/client"
	"github.com/schoolms/portal-client/internal/core/domain"
)

var (
	statsRole string
	listLimit int
	daysAhead int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard statistics",
	Long: `Show the dashboard counters for a role. The API picks the caller's
primary role when --role is empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			stats, err := c.Dashboard.Stats(ctx, domain.StatsQuery{Role: statsRole, Limit: listLimit})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		})
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			items, err := c.Dashboard.RecentActivity(ctx, domain.ActivityQuery{Limit: listLimit})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show upcoming events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			items, err := c.Dashboard.UpcomingEvents(ctx, domain.EventsQuery{DaysAhead: daysAhead, Limit: listLimit})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		})
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsRole, "role", "", "role to show statistics for")
	for _, c := range []*cobra.Command{statsCmd, activityCmd, eventsCmd} {
		c.Flags().IntVar(&listLimit, "limit", 0, "maximum number of items (0 uses the API default)")
	}
	eventsCmd.Flags().IntVar(&daysAhead, "days-ahead", 0, "look-ahead window in days (0 uses the API default)")

	rootCmd.AddCommand(statsCmd, activityCmd, eventsCmd)
}
