// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 The Lightning Network Developers

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dlcproto/dlcd"
	"github.com/urfave/cli"
)

// cfg is the configuration loaded before any command runs.
var cfg *dlcd.Config

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[dlccli] %v\n", err)
	os.Exit(1)
}

// actionDecorator prefixes errors with the command that failed.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if err := f(c); err != nil {
			return fmt.Errorf("%s: %w", c.Command.Name, err)
		}

		return nil
	}
}

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "    ")
	out.WriteString("\n")
	_, _ = out.WriteTo(os.Stdout)
}

// loadConfig loads the dlcd configuration using the global flags.
func loadConfig(ctx *cli.Context) error {
	args := []string{
		"--nofilelog",
		"--chain.network=" + ctx.GlobalString("network"),
		"--debuglevel=" + ctx.GlobalString("debuglevel"),
	}
	if dir := ctx.GlobalString("dlcdir"); dir != "" {
		args = append(args, "--dlcdir="+dir)
	}

	var err error
	cfg, err = dlcd.LoadConfig(args)

	return err
}

func main() {
	app := cli.NewApp()
	app.Name = "dlccli"
	app.Usage = "offline inspection of discreet log contracts"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "network, n",
			Usage: "the network addresses are shown for",
			Value: "mainnet",
		},
		cli.StringFlag{
			Name:  "debuglevel",
			Usage: "logging level for all subsystems",
			Value: "error",
		},
		cli.StringFlag{
			Name:  "dlcdir",
			Usage: "path to the dlcd base directory",
		},
	}
	app.Before = loadConfig
	app.Commands = []cli.Command{
		contractIDCommand,
		decodeMsgCommand,
		payoutGroupsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
