package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/thetatoken/tdrop-marketplace/pkg/market"
)

func main() {
	app := cli.NewApp()
	app.Name = "gen_credentials"
	app.Usage = "generate secp256k1 keypairs for makers and relayers"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "n",
			Value: 10,
			Usage: "number of credentials to generate",
		},
		cli.StringFlag{
			Name:  "dir",
			Value: "./credentials",
			Usage: "output directory",
		},
	}
	app.Action = func(c *cli.Context) error {
		dir := c.String("dir")
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}

		for i := 0; i < c.Int("n"); i++ {
			sk, addr := market.RandKeyPair()
			path := filepath.Join(dir, fmt.Sprintf("account-%d", i))
			content := fmt.Sprintf("addr: %s\nsk: %s\n", addr.Hex(), sk.Hex())
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				return err
			}
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
