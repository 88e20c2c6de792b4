package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/app"
	"github.com/JakeFAU/news-downloader/internal/config"
	"github.com/JakeFAU/news-downloader/internal/crawler"
	"github.com/JakeFAU/news-downloader/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// flagKeys maps download flags onto configuration keys.
var flagKeys = map[string]string{
	"workers":     "download.workers",
	"output-dir":  "download.output_dir",
	"output-file": "download.output_file",
	"user-agent":  "download.user_agent",
	"urls-file":   "download.urls_file",
	"backend":     "fetch.backend",
}

// newDownloadCmd creates the 'download' subcommand.
func newDownloadCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	var noPersist bool
	cmd := &cobra.Command{
		Use:   "download [url...]",
		Short: "Download a batch of news URLs",
		Long: `Splits the URLs across workers, fetches each page, checks robots rules
on the final URL, and extracts article, live-story, or gallery content.
Results are written to <output-dir>/<output-file> unless --no-persist is set,
in which case they are printed to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noPersist {
				v.Set("download.persist", false)
			}
			cfg, err := config.LoadWithViper(v, *cfgFile)
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Int("workers", 4, "number of parallel browser workers")
	flags.String("output-dir", "parserd", "directory (or object prefix) for the results file")
	flags.String("output-file", "output.json", "results file name")
	flags.BoolVar(&noPersist, "no-persist", false, "print results instead of writing them")
	flags.String("user-agent", config.DefaultUserAgent, "browser identity, also used to select robots groups")
	flags.String("urls-file", "", "file with one URL per line; lines starting with # are skipped")
	flags.String("backend", config.BackendChromedp, "page fetcher: chromedp or colly")
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

func runDownload(parent context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	urls, err := collectURLs(args, cfg.Download.URLsFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no urls given: pass them as arguments or with --urls-file")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(closeCtx)
	}()

	out, err := a.Run(ctx, urls)
	if err != nil {
		return err
	}
	s := out.Report.Summary
	logger.Info("download complete",
		zap.String("batch_id", s.BatchID),
		zap.Int("total", s.Total),
		zap.Int("failed", s.Failed()),
		zap.Int("parse_failed", s.ParseFailed),
		zap.String("output", out.OutputURI),
	)
	if !cfg.Download.Persist {
		if err := crawler.EncodeResults(stdout, out.Report.Results); err != nil {
			return fmt.Errorf("print results: %w", err)
		}
	}
	return nil
}

// collectURLs merges argument URLs with those listed in path, in order.
func collectURLs(args []string, path string) ([]string, error) {
	urls := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}
	if path == "" {
		return urls, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()
	fromFile, err := readURLs(f)
	if err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return append(urls, fromFile...), nil
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		// Fragments are part of a URL; only " #" starts a trailing comment.
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line != "" {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
