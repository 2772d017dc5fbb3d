package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli"

	"github.com/thetatoken/tdrop-marketplace/pkg/market"
)

// sign_order is the off-chain half of order authorization: it hashes
// an order under the exchange's domain and signs it with the maker's
// key. The output signature is what a relayer submits alongside the
// order in an atomic match.
func main() {
	app := cli.NewApp()
	app.Name = "sign_order"
	app.Usage = "hash and sign an order JSON file"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "order",
			Usage: "path to the order JSON file",
		},
		cli.StringFlag{
			Name:  "sk",
			Usage: "maker secret key, hex",
		},
		cli.Uint64Flag{
			Name:  "chainid",
			Value: 1,
			Usage: "chain id of the exchange domain",
		},
		cli.StringFlag{
			Name:  "exchange",
			Usage: "exchange address of the domain, hex",
		},
	}
	app.Action = func(c *cli.Context) error {
		b, err := os.ReadFile(c.String("order"))
		if err != nil {
			return err
		}

		var order market.Order
		if err := json.Unmarshal(b, &order); err != nil {
			return fmt.Errorf("error decoding order: %v", err)
		}

		sk, err := market.LoadSK(c.String("sk"))
		if err != nil {
			return fmt.Errorf("error loading secret key: %v", err)
		}

		exchange := common.HexToAddress(c.String("exchange"))
		hash := order.Hash(c.Uint64("chainid"), exchange)
		sig := sk.Sign(hash)

		fmt.Printf("maker: %s\n", sk.Addr().Hex())
		fmt.Printf("hash: %s\n", hash.Hex())
		fmt.Printf("sig: %x\n", []byte(sig))
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
