package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/finishline/internal/reviewclient"
)

func newQueueCommand(g *globalFlags) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the validation queue",
	}
	queueCmd.AddCommand(newQueueListCommand(g), newQueueShowCommand(g))
	return queueCmd
}

func newQueueListCommand(g *globalFlags) *cobra.Command {
	var (
		status      string
		page, limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			res, err := c.ListQueue(cmd.Context(), strings.ToUpper(status), page, limit)
			if err != nil {
				return err
			}
			return printed(cmd, g, res, func() { reviewclient.RenderQueue(cmd.OutOrStdout(), res) })
		},
	}
	cmd.Flags().StringVar(&status, "status", "PENDING", "PENDING, CLAIMED, APPROVED or REJECTED")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "items per page (server default when 0)")
	return cmd
}

func newQueueShowCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <queue-item-id>",
		Short: "Show one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			item, err := c.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printed(cmd, g, item, func() { reviewclient.RenderItem(cmd.OutOrStdout(), item) })
		},
	}
}

func newClaimCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <queue-item-id>",
		Short: "Claim an item for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			res, err := c.Claim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printed(cmd, g, res, func() {
				if res.LeaseExpiry != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Claimed %s until %s\n", res.Item.ID, res.LeaseExpiry.Local().Format("15:04:05"))
				}
				reviewclient.RenderItem(cmd.OutOrStdout(), res.Item)
			})
		},
	}
}

func newApproveCommand(g *globalFlags) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "approve <queue-item-id>",
		Short: "Approve the recognition on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			item, err := c.Approve(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			return printed(cmd, g, item, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %s\n", item.ID)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "reviewer notes")
	return cmd
}

func newRejectCommand(g *globalFlags) *cobra.Command {
	var reason, notes string
	cmd := &cobra.Command{
		Use:   "reject <queue-item-id>",
		Short: "Reject the recognition on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return missingFlag("reason")
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			item, err := c.Reject(cmd.Context(), args[0], reason, notes)
			if err != nil {
				return err
			}
			return printed(cmd, g, item, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s: %s\n", item.ID, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&notes, "notes", "", "reviewer notes")
	return cmd
}

func newReassignCommand(g *globalFlags) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "reassign <queue-item-id>",
		Short: "Assign an item to another reviewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(target) == "" {
				return missingFlag("to")
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			item, err := c.Reassign(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			return printed(cmd, g, item, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", item.ID, target)
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "reviewer id to assign")
	return cmd
}

func newImageCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "image <image-id>",
		Short: "Show the recognition summary of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			img, err := c.Image(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printed(cmd, g, img, func() { reviewclient.RenderImage(cmd.OutOrStdout(), img) })
		},
	}
}

func newSubmitCommand(g *globalFlags) *cobra.Command {
	var (
		file    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit fusion jobs from a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return missingFlag("file")
			}
			jobs, err := reviewclient.LoadJobsFile(file)
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			summary := c.SubmitJobs(cmd.Context(), jobs, workers)
			if err := printed(cmd, g, summary, func() { reviewclient.RenderSummary(cmd.OutOrStdout(), summary) }); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", summary.Failed, summary.Submitted)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "jobs file")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent submissions")
	return cmd
}

func newStatsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show service statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printed(cmd, g, stats, func() { reviewclient.RenderStats(cmd.OutOrStdout(), stats) })
		},
	}
}
