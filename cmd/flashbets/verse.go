package main

import (
	"context"

	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/urfave/cli/v2"
)

var verseFlag = cli.StringFlag{
	Name:     "verse",
	Usage:    "the id of the verse",
	Required: true,
}

var verseCmd = cli.Command{
	Name:  "verse",
	Usage: "manage verses, the isolated collateral domains of positions",
	Subcommands: []*cli.Command{
		{
			Name:  "new",
			Usage: "create a new verse",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "title",
					Usage:    "the title of the verse",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "parent",
					Usage: "the id of the parent verse",
				},
			},
			Action: newVerseAction,
		},
		{
			Name:   "info",
			Usage:  "get info about a verse",
			Flags:  []cli.Flag{&verseFlag},
			Action: verseInfoAction,
		},
		{
			Name:   "list",
			Usage:  "list all verses",
			Action: listVersesAction,
		},
		{
			Name:   "check",
			Usage:  "check the collateral isolation of a verse",
			Flags:  []cli.Flag{&verseFlag},
			Action: checkVerseAction,
		},
		{
			Name:  "merge",
			Usage: "dissolve a verse moving its positions to successors",
			Flags: []cli.Flag{
				&verseFlag,
				&cli.StringSliceFlag{
					Name: "successor",
					Usage: "a successor verse and the positions it takes over, " +
						"as verse_id:position_id:position_id, repeatable",
					Required: true,
				},
			},
			Action: mergeVerseAction,
		},
	},
}

func newVerseAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	verse, err := appConfig.RiskService().CreateVerse(
		context.Background(), ctx.String("title"), ctx.String("parent"),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, verse)
}

func verseInfoAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	verse, err := appConfig.RiskService().GetVerse(
		context.Background(), ctx.String(verseFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, verse)
}

func listVersesAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	verses, err := appConfig.RiskService().ListVerses(context.Background())
	if err != nil {
		return err
	}
	return printRespJSON(ctx, verses)
}

func checkVerseAction(ctx *cli.Context) error {
	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := appConfig.RiskService().CheckVerse(
		context.Background(), ctx.String(verseFlag.Name),
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, res)
}

func mergeVerseAction(ctx *cli.Context) error {
	successorArgs := ctx.StringSlice("successor")
	successors := make([]application.Successor, 0, len(successorArgs))
	for _, arg := range successorArgs {
		verseID, positionIDs, err := parseSuccessor(arg)
		if err != nil {
			return err
		}
		successors = append(successors, application.Successor{
			VerseID:     verseID,
			PositionIDs: positionIDs,
		})
	}

	appConfig, cleanup, err := getServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := appConfig.RiskService().MergeVerse(
		context.Background(), application.MergeVerseRequest{
			VerseID:    ctx.String(verseFlag.Name),
			Successors: successors,
		},
	)
	if err != nil {
		return err
	}
	return printRespJSON(ctx, res)
}
