// Command cookiedump builds a cookie snapshot from a browser you are already
// logged in with, as an alternative to wiki-pdf-export --login.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"wiki-pdf-export/internal/config"
	"wiki-pdf-export/internal/cookies"
	"wiki-pdf-export/internal/snapshot"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "cookiedump"
	app.Usage = "import wiki session cookies from a local browser profile"
	app.UsageText = "cookiedump [--from-browser NAME] [--for URL] [--list]"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "from-browser, b",
			Usage: "browser to read (chrome, firefox, edge, ...); empty scans all",
		},
		cli.StringFlag{
			Name:  "for",
			Usage: "site URL whose cookies to import (default: page_url from the config)",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML config",
			Value: "config.yaml",
		},
		cli.BoolFlag{
			Name:  "list, l",
			Usage: "print the matching cookies instead of saving them",
		},
		cli.BoolFlag{
			Name:  "full",
			Usage: "with --list, print full cookie values",
		},
	}
	app.Action = dump
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cookiedump: %s\n", err)
		os.Exit(1)
	}
}

func dump(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("load config: %v", err), 1)
	}
	site := c.String("for")
	if site == "" {
		site = cfg.PageURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.Bool("list") {
		entries, err := cookies.List(ctx, c.String("from-browser"), site)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("read cookies: %v", err), 1)
		}
		cookies.WriteTable(os.Stdout, entries, c.Bool("full"), time.Now())
		return nil
	}

	cs, err := cookies.ExtractFromBrowser(ctx, c.String("from-browser"), site)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("read cookies: %v", err), 1)
	}
	store, err := snapshot.Open(cfg.CookieStore, cfg.CookiesFile, cfg.Host())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := store.Save(cs); err != nil {
		return cli.NewExitError(fmt.Sprintf("write %s: %v", store.Location(), err), 1)
	}
	fmt.Printf("Wrote %d cookies for %s to %s\n", len(cs), site, store.Location())
	return nil
}
