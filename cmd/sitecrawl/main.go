// Command sitecrawl is the entrypoint for the site-scoped, sitemap-rooted
// documentation crawler. See internal/cli for the crawl/export/validate
// subcommands.
package main

import (
	cli "github.com/rohmanhakim/sitecrawl/internal/cli"
)

func main() {
	cli.Execute()
}
