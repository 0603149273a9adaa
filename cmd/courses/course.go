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

func courseCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Create, read, update and delete courses",
	}
	cmd.AddCommand(
		courseCreateCmd(opts),
		courseGetCmd(opts),
		courseUpdateCmd(opts),
		courseDeleteCmd(opts),
		courseListCmd(opts),
		courseMineCmd(opts),
		courseSectionsCmd(opts),
		courseEnrollCmd(opts),
		courseUnenrollCmd(opts),
		courseEnrolledCmd(opts),
		courseStudentsCmd(opts),
		courseRepairCmd(opts),
	)
	return cmd
}

func courseCreateCmd(opts *options) *cobra.Command {
	var timestamp uint64
	var requestID string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a course and print its address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timestamp == 0 {
				timestamp = uint64(time.Now().Unix())
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				var err error
				var addr types.Address
				if requestID != "" {
					addr, err = c.CreateCourseOnce(ctx, requestID, args[0], timestamp)
				} else {
					addr, err = c.CreateCourse(ctx, args[0], timestamp)
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

func courseGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <course>",
		Short: "Print the latest version of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				v, ok, err := c.GetLatestCourse(ctx, addr)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "course not found")
					return nil
				}
				fmt.Fprintf(out, "Title:     %s\n", v.Entry.Title)
				fmt.Fprintf(out, "Teacher:   %s\n", v.Entry.TeacherAddress)
				fmt.Fprintf(out, "Timestamp: %d\n", v.Entry.Timestamp)
				fmt.Fprintf(out, "Version:   %s\n", v.Address)
				for _, s := range v.Entry.Sections {
					fmt.Fprintf(out, "Section:   %s\n", s)
				}
				return nil
			})
		},
	}
}

func courseUpdateCmd(opts *options) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "update <course> [section...]",
		Short: "Replace title and section list of a course",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			sections, err := parseAddresses(args[1:])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				got, err := c.UpdateCourse(ctx, title, sections, addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, got)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func courseDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course>",
		Short: "Delete a course and its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				got, err := c.DeleteCourse(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, got)
				return nil
			})
		},
	}
}

func courseListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all courses in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				all, err := c.GetAllCourses(ctx)
				if err != nil {
					return err
				}
				printAddresses(out, all)
				return nil
			})
		},
	}
}

func courseMineCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the courses taught by the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				mine, err := c.GetMyCourses(ctx)
				if err != nil {
					return err
				}
				printAddresses(out, mine)
				return nil
			})
		},
	}
}

func courseSectionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sections <course>",
		Short: "List the sections of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				sections, err := c.ListSections(ctx, addr)
				if err != nil {
					return err
				}
				printAddresses(out, sections)
				return nil
			})
		},
	}
}

func courseEnrollCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <course>",
		Short: "Enroll the agent in a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				return c.EnrollInCourse(ctx, addr)
			})
		},
	}
}

func courseUnenrollCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unenroll <course>",
		Short: "Remove the agent from a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				return c.UnenrollFromCourse(ctx, addr)
			})
		},
	}
}

func courseEnrolledCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "enrolled",
		Short: "List the courses the agent is enrolled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				enrolled, err := c.GetMyEnrolledCourses(ctx)
				if err != nil {
					return err
				}
				printAddresses(out, enrolled)
				return nil
			})
		},
	}
}

func courseStudentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "students <course>",
		Short: "List the students of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				students, err := c.GetStudents(ctx, addr)
				if err != nil {
					return err
				}
				printAddresses(out, students)
				return nil
			})
		},
	}
}

func courseRepairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <course>",
		Short: "Remove extra latest links of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				removed, err := c.RepairCourse(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d links\n", removed)
				return nil
			})
		},
	}
}
