package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/lewisedginton/librus_mcp/internal/collector"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/server"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/urfave/cli/v2"
)

// ScrapeCommand runs one collection outside the MCP server
func ScrapeCommand() *cli.Command {
	return &cli.Command{
		Name:      "scrape",
		Usage:     "Collect from the portal for one child, or every child with --all",
		ArgsUsage: "[child]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "full", Usage: "Ignore the last scrape and collect everything"},
			&cli.BoolFlag{Name: "all", Usage: "Collect for every configured child"},
		},
		Action: scrapeAction,
	}
}

func scrapeAction(ctx *cli.Context) error {
	full := ctx.Bool("full")
	if ctx.Bool("all") {
		return withServer(ctx, func(c context.Context, s *server.Server, log logger.Logger) error {
			results, err := s.Collector().RunAll(c, full)
			for _, res := range results {
				printResult(ctx, res)
			}
			return err
		})
	}

	name, err := childArg(ctx)
	if err != nil {
		return err
	}
	return withServer(ctx, func(c context.Context, s *server.Server, log logger.Logger) error {
		res, err := s.Collector().Run(c, name, full)
		if err != nil {
			log.Error("Collection failed", logger.StringField("child", name), logger.ErrorField(err))
			return err
		}
		fmt.Fprint(ctx.App.Writer, res.Report)
		printResult(ctx, res)
		return nil
	})
}

func printResult(ctx *cli.Context, res *collector.Result) {
	w := ctx.App.Writer
	fmt.Fprintf(w, "%s: %s run, %d records, %d grades added, %d tasks added, report %s\n",
		res.Child, res.Mode, res.Stats.Total(), res.Merge.Added, res.TasksAdded, res.ReportPath)
	for cat, msg := range res.Failed {
		fmt.Fprintf(w, "  %s failed: %s\n", cat, msg)
	}
}

// MemoryCommand prints a child's memory
func MemoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "memory",
		Usage:     "Print the memory of a child",
		ArgsUsage: "<child>",
		Action: func(ctx *cli.Context) error {
			name, err := childArg(ctx)
			if err != nil {
				return err
			}
			return withServer(ctx, func(c context.Context, s *server.Server, _ logger.Logger) error {
				child, err := s.Resolver().Lookup(name)
				if err != nil {
					return err
				}
				mem, err := s.Memory().Get(c, child.Name)
				if err != nil {
					return err
				}
				fmt.Fprint(ctx.App.Writer, memory_service.Format(mem))
				return nil
			})
		},
	}
}

// ChildrenCommand lists the configured children
func ChildrenCommand() *cli.Command {
	return &cli.Command{
		Name:  "children",
		Usage: "List configured children with their last scrape",
		Action: func(ctx *cli.Context) error {
			return withServer(ctx, func(c context.Context, s *server.Server, _ logger.Logger) error {
				for _, child := range s.Resolver().List() {
					st, err := s.State().Get(c, child.Name)
					if err != nil {
						return err
					}
					last := "never"
					if st.LastScrape != nil {
						last = st.LastScrape.Format("2006-01-02 15:04")
					}
					aliases := ""
					if len(child.Aliases) > 0 {
						aliases = " (" + strings.Join(child.Aliases, ", ") + ")"
					}
					fmt.Fprintf(ctx.App.Writer, "%s%s  last scrape: %s  setup: %t\n", child.Name, aliases, last, st.SetupCompleted)
				}
				return nil
			})
		},
	}
}
