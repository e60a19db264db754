// leechctl is the operator CLI for a cloudleecher server. It submits
// downloads, follows them live, and manages the session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/cloudleecher/internal/client"
	"github.com/italolelis/cloudleecher/internal/task"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "leechctl",
		Usage: "control a cloudleecher download server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "base URL of the server",
				Value:   "http://localhost:8000",
				Sources: cli.EnvVars("LEECHCTL_SERVER"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key sent as x-api-key",
				Sources: cli.EnvVars("LEECHCTL_API_KEY"),
			},
		},
		Commands: []*cli.Command{
			addCommand(),
			addFileCommand(),
			statusCommand(),
			watchCommand(),
			controlCommand("pause", "pause a download"),
			controlCommand("resume", "resume a paused download"),
			controlCommand("remove", "remove a download"),
			driveCommand(),
			logsCommand(),
			cleanupCommand(),
		},
	}
}

func apiFrom(cmd *cli.Command) *client.Client {
	return client.New(cmd.String("server"), cmd.String("api-key"))
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "submit a magnet link",
		ArgsUsage: "<magnet-uri>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			magnet := cmd.Args().First()
			if magnet == "" {
				return fmt.Errorf("magnet URI is required")
			}

			gid, err := apiFrom(cmd).AddMagnet(ctx, magnet)
			if err != nil {
				return err
			}

			fmt.Println("queued:", gid)

			return nil
		},
	}
}

func addFileCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-file",
		Usage:     "submit a .torrent file",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("torrent file path is required")
			}

			torrent, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read torrent file: %w", err)
			}

			gid, err := apiFrom(cmd).AddFile(ctx, torrent)
			if err != nil {
				return err
			}

			fmt.Println("queued:", gid)

			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the current download list once",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rec := client.NewReconciler(apiFrom(cmd), 0, 0)

			if err := rec.Tick(ctx); err != nil {
				return err
			}

			renderTasks(rec.Tasks())

			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "follow downloads live",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "poll interval",
				Value: 2 * time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			interval := cmd.Duration("interval")
			rec := client.NewReconciler(apiFrom(cmd), interval, 0)

			for {
				if err := rec.Tick(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}

					fmt.Fprintln(os.Stderr, "poll failed:", err)
				} else {
					fmt.Print("\033[2J\033[H")
					renderTasks(rec.Tasks())
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}
}

func controlCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<gid>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gid := cmd.Args().First()
			if gid == "" {
				return fmt.Errorf("gid is required")
			}

			api := apiFrom(cmd)

			var err error

			switch name {
			case "pause":
				err = api.Pause(ctx, gid)
			case "resume":
				err = api.Resume(ctx, gid)
			case "remove":
				err = api.Remove(ctx, gid)
			}

			if err != nil {
				return err
			}

			fmt.Println(name+"d:", gid)

			return nil
		},
	}
}

func driveCommand() *cli.Command {
	return &cli.Command{
		Name:  "drive",
		Usage: "show durable storage capacity",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info, err := apiFrom(cmd).DriveInfo(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("total: %s\nused:  %s (%d%%)\nfree:  %s\n",
				humanize.IBytes(info.Total), humanize.IBytes(info.Used),
				info.UsedPercent, humanize.IBytes(info.Free))

			return nil
		},
	}
}

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "show recent server activity",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			entries, err := apiFrom(cmd).Logs(ctx)
			if err != nil {
				return err
			}

			for _, e := range entries {
				line := fmt.Sprintf("%s  %-7s %s", e.Timestamp.Format(time.TimeOnly), e.Level, e.Message)

				if e.GID != "" {
					line += " gid=" + e.GID
				}

				fmt.Println(line)
			}

			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "remove all downloads and clear staging",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			removed, err := apiFrom(cmd).Cleanup(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("cleaned up, removed %d download(s)\n", removed)

			return nil
		},
	}
}

func renderTasks(tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Println("no downloads")

		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GID\tPHASE\tNAME\tPROGRESS\tSPEED\tSEEDERS")

	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			t.GID,
			phaseLabel(t),
			truncateName(t.Name, 40),
			progressLabel(t),
			humanize.Bytes(uint64(t.DownloadSpeed))+"/s",
			t.NumSeeders,
		)
	}

	w.Flush()
}

func phaseLabel(t task.Task) string {
	if t.Phase == task.PhaseError && t.ErrorCode == task.ErrorCodeLost {
		return "lost"
	}

	return string(t.Phase)
}

func progressLabel(t task.Task) string {
	if t.TotalLength == 0 {
		return "-"
	}

	pct := float64(t.CompletedLength) / float64(t.TotalLength) * 100

	return fmt.Sprintf("%s / %s (%.1f%%)",
		humanize.Bytes(uint64(t.CompletedLength)),
		humanize.Bytes(uint64(t.TotalLength)),
		pct)
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n-3] + "..."
}
