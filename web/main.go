package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/renderer"
	"github.com/df07/go-nerfw-renderer/web/server"
)

func main() {
	app := cli.NewApp()
	app.Name = "nerfw-web"
	app.Usage = "Serve novel view renders over HTTP"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "port",
			Usage: "Port to serve on",
			Value: 8080,
		},
		cli.StringFlag{
			Name:  "scenes-dir",
			Usage: "Directory of YAML scene files",
			Value: "scenes",
		},
		cli.StringFlag{
			Name:  "checkpoint",
			Usage: "Model checkpoint served when a request sets model=true",
		},
		cli.BoolFlag{
			Name:  "v",
			Usage: "Enable debug logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := core.NewDefaultLogger(os.Stderr, c.Bool("v"))

	var system *renderer.System
	if path := c.String("checkpoint"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "failed to open checkpoint")
		}
		system, err = renderer.LoadCheckpoint(f)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "checkpoint %s", path)
		}
		logger.Infof("Loaded model with %d parameters from %s", system.NumParams(), path)
	}

	webServer := server.NewServer(c.Int("port"), c.String("scenes-dir"), system, logger)
	logger.Infof("NeRF-W Web Server")
	logger.Infof("Visit http://localhost:%d to start rendering", c.Int("port"))
	return webServer.Start()
}
