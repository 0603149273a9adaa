package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	ouroboros "github.com/i5heu/ouroboros-courses"
	"github.com/i5heu/ouroboros-courses/internal/config"
	"github.com/i5heu/ouroboros-courses/pkg/courses"
	"github.com/i5heu/ouroboros-courses/pkg/types"
	workerpool "github.com/i5heu/ouroboros-courses/pkg/workerPool"
)

type options struct {
	configPath string
	dataPath   string
	agent      string
	backend    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "courses",
		Short:         "Manage courses, sections and content in a local ouroboros database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.dataPath, "data", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.agent, "agent", "", "acting agent name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "badger or memory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(courseCmd(opts))
	rootCmd.AddCommand(sectionCmd(opts))
	rootCmd.AddCommand(contentCmd(opts))
	rootCmd.AddCommand(repairCmd(opts))
	return rootCmd
}

func (o *options) load() (ouroboros.Config, error) {
	c := config.Default()
	if o.configPath != "" {
		var err error
		if c, err = config.Load(o.configPath); err != nil {
			return ouroboros.Config{}, err
		}
	}
	if o.dataPath != "" {
		c.Paths = []string{o.dataPath}
	}
	if o.agent != "" {
		c.Agent = o.agent
	}
	if o.backend != "" {
		c.Backend = o.backend
	}
	if o.logLevel != "" {
		c.LogLevel = o.logLevel
	}
	if err := c.Validate(); err != nil {
		return ouroboros.Config{}, err
	}
	return ouroboros.ConfigFromFile(c)
}

// withCourses opens the database for the duration of fn.
func (o *options) withCourses(cmd *cobra.Command, fn func(ctx context.Context, c *courses.Coordinator, out io.Writer) error) (err error) {
	conf, err := o.load()
	if err != nil {
		return err
	}
	db, err := ouroboros.New(conf)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := db.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(context.Background()); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	c, err := db.Courses()
	if err != nil {
		return err
	}
	return fn(ctx, c, cmd.OutOrStdout())
}

func repairCmd(opts *options) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Remove extra latest links of every course and section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCourses(cmd, func(ctx context.Context, c *courses.Coordinator, out io.Writer) error {
				wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: workers})
				defer wp.Close()

				report, err := c.RepairAll(ctx, wp)
				fmt.Fprintf(out, "checked %d courses and %d sections, removed %d links\n",
					report.Courses, report.Sections, report.Removed)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "parallel repairs (default three per CPU)")
	return cmd
}

func parseAddress(s string) (types.Address, error) {
	return types.ParseAddress(strings.TrimSpace(s))
}

func parseAddresses(args []string) ([]types.Address, error) {
	out := make([]types.Address, 0, len(args))
	for _, a := range args {
		addr, err := parseAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func printAddresses(out io.Writer, addrs []types.Address) {
	for _, a := range addrs {
		fmt.Fprintln(out, a.String())
	}
}
