package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/i5heu/ouroboros-courses/pkg/courses"
)

func contentCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Create, list, update and unlink section content",
	}
	cmd.AddCommand(
		contentCreateCmd(opts),
		contentListCmd(opts),
		contentGetCmd(opts),
		contentUpdateCmd(opts),
		contentDeleteCmd(opts),
	)
	return cmd
}

func contentCreateCmd(opts *options) *cobra.Command {
	var url, description string
	var timestamp uint64

	cmd := &cobra.Command{
		Use:   "create <section> <name>",
		Short: "Create content in a section and print its address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			if timestamp == 0 {
				timestamp = uint64(time.Now().Unix())
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				addr, err := c.CreateContent(ctx, args[1], url, description, timestamp, section)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, addr)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "content URL")
	cmd.Flags().StringVar(&description, "description", "", "content description")
	cmd.Flags().Uint64Var(&timestamp, "timestamp", 0, "creation timestamp (default now)")
	return cmd
}

func contentListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list <section>",
		Short: "List the content of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				contents, err := c.GetContents(ctx, section)
				if err != nil {
					return err
				}
				printAddresses(out, contents)
				return nil
			})
		},
	}
}

func contentGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <content>",
		Short: "Print a content entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				content, err := c.GetContent(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Name:        %s\n", content.Name)
				fmt.Fprintf(out, "URL:         %s\n", content.URL)
				fmt.Fprintf(out, "Description: %s\n", content.Description)
				fmt.Fprintf(out, "Timestamp:   %d\n", content.Timestamp)
				return nil
			})
		},
	}
}

func contentUpdateCmd(opts *options) *cobra.Command {
	var name, url, description string

	cmd := &cobra.Command{
		Use:   "update <section> <content>",
		Short: "Edit content and move the section link to the new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			addr, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				got, err := c.UpdateContent(ctx, addr, name, url, description, section)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, got)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&url, "url", "", "new URL")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func contentDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <section> <content>",
		Short: "Unlink content from a section; the content itself is kept",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			addr, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				got, err := c.DeleteContent(ctx, addr, section)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, got)
				return nil
			})
		},
	}
}
