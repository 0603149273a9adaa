package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/i5heu/ouroboros-courses/pkg/courses"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

func sectionCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Create, read, update and delete sections",
	}
	cmd.AddCommand(
		sectionCreateCmd(opts),
		sectionGetCmd(opts),
		sectionUpdateCmd(opts),
		sectionDeleteCmd(opts),
		sectionRepairCmd(opts),
	)
	return cmd
}

func sectionCreateCmd(opts *options) *cobra.Command {
	var timestamp uint64
	var requestID string

	cmd := &cobra.Command{
		Use:   "create <course> <title>",
		Short: "Create a section in a course and print its address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			course, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			if timestamp == 0 {
				timestamp = uint64(time.Now().Unix())
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				var addr types.Address
				var err error
				if requestID != "" {
					addr, err = c.CreateSectionOnce(ctx, requestID, args[1], course, timestamp)
				} else {
					addr, err = c.CreateSection(ctx, args[1], course, timestamp)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(out, addr)
				return nil
			})
		},
	}

	cmd.Flags().Uint64Var(&timestamp, "timestamp", 0, "creation timestamp (default now)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "make the create idempotent under this ID")
	return cmd
}

func sectionGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <section>",
		Short: "Print the latest version of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				v, ok, err := c.GetLatestSection(ctx, addr)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "section not found")
					return nil
				}
				fmt.Fprintf(out, "Title:     %s\n", v.Entry.Title)
				fmt.Fprintf(out, "Timestamp: %d\n", v.Entry.Timestamp)
				fmt.Fprintf(out, "Version:   %s\n", v.Address)
				return nil
			})
		},
	}
}

func sectionUpdateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "update <section> <title>",
		Short: "Rename a section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				got, err := c.UpdateSection(ctx, args[1], addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, got)
				return nil
			})
		},
	}
}

func sectionDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <section>",
		Short: "Delete a section, keeping its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				got, err := c.DeleteSection(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, got)
				return nil
			})
		},
	}
}

func sectionRepairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <section>",
		Short: "Remove extra latest links of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				removed, err := c.RepairSection(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d links\n", removed)
				return nil
			})
		},
	}
}
