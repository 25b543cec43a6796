package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/urfave/cli/v2"
)

var marketFlag = cli.StringFlag{
	Name:     "market",
	Usage:    "the id of the market",
	Required: true,
}

var marketCmd = cli.Command{
	Name:  "market",
	Usage: "manage prediction markets",
	Subcommands: []*cli.Command{
		{
			Name:  "new",
			Usage: "create a new market",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "title",
					Usage:    "the question the market resolves",
					Required: true,
				},
				&cli.UintFlag{
					Name:  "outcomes",
					Usage: "the number of outcomes, or bins for a continuous market",
					Value: 2,
				},
				&cli.BoolFlag{
					Name:  "continuous",
					Usage: "create a range market priced by L2-AMM",
				},
				&cli.DurationFlag{
					Name:  "expiry",
					Usage: "time from now after which the market expires",
					Value: 30 * 24 * time.Hour,
				},
				&cli.Uint64Flag{
					Name:     "liquidity",
					Usage:    "the liquidity parameter and initial collateral of the pool",
					Required: true,
				},
				&cli.Uint64Flag{
					Name:  "fee_bps",
					Usage: "fixed trading fee in basis points, elastic if not set",
				},
				&cli.StringFlag{
					Name:  "initial_prices",
					Usage: "comma separated initial probabilities, eg. 0.6,0.4",
				},
				&cli.Uint64Flag{
					Name:  "min",
					Usage: "lower bound of a continuous market range",
				},
				&cli.Uint64Flag{
					Name:  "max",
					Usage: "upper bound of a continuous market range",
				},
				&cli.StringFlag{
					Name:  "mean",
					Usage: "mean of the normal prior of a continuous market",
				},
				&cli.StringFlag{
					Name:  "stddev",
					Usage: "standard deviation of the normal prior of a continuous market",
				},
				&cli.Uint64Flag{
					Name:  "mass",
					Usage: "weight spread over the bins following the normal prior",
				},
			},
			Action: newMarketAction,
		},
		{
			Name:   "info",
			Usage:  "get info about a market",
			Flags:  []cli.Flag{&marketFlag},
			Action: marketInfoAction,
		},
		{
			Name:  "list",
			Usage: "list all markets",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "active",
					Usage: "list only active markets",
				},
			},
			Action: listMarketsAction,
		},
		{
			Name:   "buy",
			Usage:  "buy outcome shares",
			Flags:  append(tradeFlags, &cli.Uint64Flag{Name: "max_cost", Usage: "max collateral paid, fee included"}),
			Action: buyAction,
		},
		{
			Name:   "sell",
			Usage:  "sell outcome shares",
			Flags:  append(tradeFlags, &cli.Uint64Flag{Name: "min_payout", Usage: "min collateral received, net of fees"}),
			Action: sellAction,
		},
		{
			Name:  "deposit",
			Usage: "add liquidity to a PM-AMM market",
			Flags: []cli.Flag{
				&marketFlag,
				&cli.Uint64Flag{
					Name:     "amount",
					Usage:    "the collateral to deposit",
					Required: true,
				},
			},
			Action: depositMarketAction,
		},
		{
			Name:  "withdraw",
			Usage: "remove liquidity from a PM-AMM market",
			Flags: []cli.Flag{
				&marketFlag,
				&cli.Uint64Flag{
					Name:     "shares",
					Usage:    "the liquidity provider shares to burn",
					Required: true,
				},
			},
			Action: withdrawMarketAction,
		},
		{
			Name:  "resolve",
			Usage: "resolve a market with its winning outcome",
			Flags: []cli.Flag{
				&marketFlag,
				&cli.IntFlag{
					Name:     "outcome",
					Usage:    "the winning outcome",
					Required: true,
				},
			},
			Action: resolveMarketAction,
		},
		{
			Name:   "halt",
			Usage:  "halt trading on a market",
			Flags:  []cli.Flag{&marketFlag},
			Action: haltMarketAction,
		},
		{
			Name:   "resume",
			Usage:  "resume trading on a halted market",
			Flags:  []cli.Flag{&marketFlag},
			Action: resumeMarketAction,
		},
	},
}

var tradeFlags = []cli.Flag{
	&marketFlag,
	&cli.IntFlag{
		Name:  "outcome",
		Usage: "the outcome to trade on a discrete market",
	},
	&cli.Uint64Flag{
		Name:  "lower",
		Usage: "lower bound of the range traded on a continuous market",
	},
	&cli.Uint64Flag{
		Name:  "upper",
		Usage: "upper bound of the range traded on a continuous market",
	},
	&cli.Uint64Flag{
		Name:  "shares",
		Usage: "the number of shares to trade",
	},
	&cli.Uint64Flag{
		Name:  "amount",
		Usage: "the collateral to spend, alternative to shares for buys",
	},
	&cli.Uint64Flag{
		Name:  "max_slippage_bps",
		Usage: "max deviation of the execution price from the spot price",
	},
}

func newMarketAction(ctx *cli.Context) error {
	mean, err := parseFixed(ctx.String("mean"))
	if err != nil {
		return err
	}
	stdDev, err := parseFixed(ctx.String("stddev"))
	if err != nil {
		return err
	}
	prices, err := parsePricesBps(ctx.String("initial_prices"))
	if err != nil {
		return err
	}

	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	market, err := appConfig.TradeService().CreateMarket(
		context.Background(), application.CreateMarketRequest{
			Title:            ctx.String("title"),
			Outcomes:         uint32(ctx.Uint("outcomes")),
			Continuous:       ctx.Bool("continuous"),
			ExpiresAt:        time.Now().Add(ctx.Duration("expiry")),
			Liquidity:        ctx.Uint64("liquidity"),
			FeeBps:           ctx.Uint64("fee_bps"),
			InitialPricesBps: prices,
			RangeMin:         ctx.Uint64("min"),
			RangeMax:         ctx.Uint64("max"),
			Mean:             mean,
			StdDev:           stdDev,
			Mass:             ctx.Uint64("mass"),
		},
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, market)
}

func marketInfoAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	market, err := appConfig.TradeService().GetMarket(
		context.Background(), ctx.String(marketFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, market)
}

func listMarketsAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	markets, err := appConfig.TradeService().ListMarkets(
		context.Background(), ctx.Bool("active"),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, markets)
}

func tradeRequest(ctx *cli.Context) application.TradeRequest {
	return application.TradeRequest{
		MarketID:       ctx.String(marketFlag.Name),
		Outcome:        ctx.Int("outcome"),
		Lower:          ctx.Uint64("lower"),
		Upper:          ctx.Uint64("upper"),
		Shares:         ctx.Uint64("shares"),
		AmountIn:       ctx.Uint64("amount"),
		MaxCost:        ctx.Uint64("max_cost"),
		MinPayout:      ctx.Uint64("min_payout"),
		MaxSlippageBps: ctx.Uint64("max_slippage_bps"),
	}
}

func buyAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	trade, err := appConfig.TradeService().Buy(context.Background(), tradeRequest(ctx))
	if err != nil {
		return err
	}
	return printRespJSON(ctx, trade)
}

func sellAction(ctx *cli.Context) error {
	if ctx.IsSet("amount") {
		return &invalidUsageError{ctx, "sell"}
	}

	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	trade, err := appConfig.TradeService().Sell(context.Background(), tradeRequest(ctx))
	if err != nil {
		return err
	}
	return printRespJSON(ctx, trade)
}

func depositMarketAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := appConfig.TradeService().AddLiquidity(
		context.Background(), ctx.String(marketFlag.Name), ctx.Uint64("amount"),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, res)
}

func withdrawMarketAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := appConfig.TradeService().RemoveLiquidity(
		context.Background(), ctx.String(marketFlag.Name), ctx.Uint64("shares"),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, res)
}

func resolveMarketAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	marketID := ctx.String(marketFlag.Name)
	if err := appConfig.TradeService().ResolveMarket(
		context.Background(), marketID, ctx.Int("outcome"),
	); err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, "market is resolved")
	return nil
}

func haltMarketAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := appConfig.TradeService().HaltMarket(
		context.Background(), ctx.String(marketFlag.Name),
	); err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, "market is halted")
	return nil
}

func resumeMarketAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := appConfig.TradeService().ResumeMarket(
		context.Background(), ctx.String(marketFlag.Name),
	); err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, "market is resumed")
	return nil
}
