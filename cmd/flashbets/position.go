package main

import (
	"context"

	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/urfave/cli/v2"
)

var positionFlag = cli.StringFlag{
	Name:     "position",
	Usage:    "the id of the position",
	Required: true,
}

var positionCmd = cli.Command{
	Name:  "position",
	Usage: "manage leveraged positions",
	Subcommands: []*cli.Command{
		{
			Name:  "open",
			Usage: "open a leveraged position within a verse",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "owner",
					Usage:    "the owner of the position",
					Required: true,
				},
				&marketFlag,
				&cli.StringFlag{
					Name:     "verse",
					Usage:    "the verse isolating the position collateral",
					Required: true,
				},
				&cli.IntFlag{
					Name:  "outcome",
					Usage: "the market outcome the position is exposed to",
				},
				&cli.StringFlag{
					Name:  "side",
					Usage: "long or short",
					Value: "long",
				},
				&cli.Uint64Flag{
					Name:     "size",
					Usage:    "the position size in shares",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "leverage",
					Usage: "the requested leverage",
					Value: "1",
				},
				&cli.UintFlag{
					Name:  "chain_depth",
					Usage: "depth of the position chain the position belongs to",
				},
				&cli.Uint64Flag{
					Name:  "margin",
					Usage: "collateral to lock, at least the one required by leverage",
				},
			},
			Action: openPositionAction,
		},
		{
			Name:   "close",
			Usage:  "close a position and release its margin",
			Flags:  []cli.Flag{&positionFlag},
			Action: closePositionAction,
		},
		{
			Name:   "info",
			Usage:  "get info about a position",
			Flags:  []cli.Flag{&positionFlag},
			Action: positionInfoAction,
		},
		{
			Name:  "list",
			Usage: "list positions",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "owner",
					Usage: "list only the positions of the given owner",
				},
			},
			Action: listPositionsAction,
		},
		{
			Name:  "preview",
			Usage: "preview the effect of a leverage change on a position",
			Flags: []cli.Flag{
				&positionFlag,
				&cli.StringFlag{
					Name:  "multiplier",
					Usage: "the multiplier applied to the current leverage",
					Value: "1",
				},
				&cli.UintFlag{
					Name:  "chain_depth",
					Usage: "depth of the position chain",
				},
				&cli.StringFlag{
					Name:  "chain_returns",
					Usage: "comma separated returns of the chain steps, eg. 1.5,1.2",
				},
			},
			Action: previewLeverageAction,
		},
		{
			Name:   "assess",
			Usage:  "compute the liquidation risk of a position",
			Flags:  []cli.Flag{&positionFlag},
			Action: assessPositionAction,
		},
		{
			Name:   "liquidate",
			Usage:  "liquidate an unhealthy position",
			Flags:  []cli.Flag{&positionFlag},
			Action: liquidatePositionAction,
		},
	},
}

func openPositionAction(ctx *cli.Context) error {
	leverage, err := parseFixed(ctx.String("leverage"))
	if err != nil {
		return err
	}

	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	position, err := appConfig.RiskService().OpenPosition(
		context.Background(), application.OpenPositionRequest{
			Owner:      ctx.String("owner"),
			MarketID:   ctx.String(marketFlag.Name),
			VerseID:    ctx.String("verse"),
			Outcome:    ctx.Int("outcome"),
			Side:       ctx.String("side"),
			Size:       ctx.Uint64("size"),
			Leverage:   leverage,
			ChainDepth: uint32(ctx.Uint("chain_depth")),
			Margin:     ctx.Uint64("margin"),
		},
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, position)
}

func closePositionAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	position, err := appConfig.RiskService().ClosePosition(
		context.Background(), ctx.String(positionFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, position)
}

func positionInfoAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	position, err := appConfig.RiskService().GetPosition(
		context.Background(), ctx.String(positionFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, position)
}

func listPositionsAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	positions, err := appConfig.RiskService().ListPositions(
		context.Background(), ctx.String("owner"),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, positions)
}

func previewLeverageAction(ctx *cli.Context) error {
	multiplier, err := parseFixed(ctx.String("multiplier"))
	if err != nil {
		return err
	}
	chainReturns, err := parseFixedList(ctx.String("chain_returns"))
	if err != nil {
		return err
	}

	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	preview, err := appConfig.RiskService().PreviewLeverage(
		context.Background(), application.PreviewLeverageRequest{
			PositionID:   ctx.String(positionFlag.Name),
			Multiplier:   multiplier,
			ChainDepth:   uint32(ctx.Uint("chain_depth")),
			ChainReturns: chainReturns,
		},
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, preview)
}

func assessPositionAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	assessment, err := appConfig.RiskService().AssessPosition(
		context.Background(), ctx.String(positionFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, assessment)
}

func liquidatePositionAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	position, err := appConfig.RiskService().LiquidatePosition(
		context.Background(), ctx.String(positionFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, position)
}
