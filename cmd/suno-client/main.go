// suno-client calls the song-generation proxy from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/cli"
	"github.com/book-expert/songgen/internal/download"
	"github.com/book-expert/songgen/internal/suno"
)

// Actions.
const (
	actionGenerate       = "generate"
	actionCustomGenerate = "custom-generate"
	actionExtend         = "extend"
	actionGet            = "get"
	actionQuota          = "quota"
	actionClip           = "clip"
	actionConcat         = "concat"
	actionDemo           = "demo"
)

// Flag names.
const (
	flagAction       = "action"
	flagPrompt       = "prompt"
	flagTags         = "tags"
	flagTitle        = "title"
	flagInstrumental = "instrumental"
	flagWait         = "wait"
	flagIDs          = "ids"
	flagContinueAt   = "continue-at"
)

// Flag descriptions.
const (
	flagActionDesc       = "One of: generate, custom-generate, extend, get, quota, clip, concat, demo"
	flagPromptDesc       = "Song description, or lyrics for custom-generate and extend"
	flagTagsDesc         = "Music style tags"
	flagTitleDesc        = "Song title"
	flagInstrumentalDesc = "Generate without vocals"
	flagWaitDesc         = "Ask the proxy to hold the response until audio is ready"
	flagIDsDesc          = "Comma-separated clip ids (the first is used by extend, clip and concat)"
	flagContinueAtDesc   = "Second at which extend continues the clip"
)

const logFileName = "suno-client"

var (
	errUnknownAction = errors.New("unknown action")
	errPromptNeeded  = errors.New("-" + flagPrompt + " is required")
	errIDsNeeded     = errors.New("-" + flagIDs + " is required")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	action       string
	prompt       string
	tags         string
	title        string
	instrumental bool
	wait         bool
	ids          []string
	continueAt   float64
}

// rawSaver archives undecoded proxy responses.
type rawSaver interface {
	SaveRawResponse(raw []byte, name string) (string, error)
}

type app struct {
	client *suno.Client
	saver  rawSaver
	policy suno.PollPolicy
	log    *logger.Logger
	out    io.Writer
}

func main() {
	cli.Exit(run())
}

func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	bootstrap, err := cli.Bootstrap(logFileName)
	if err != nil {
		return err
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		client: suno.NewClient(cfg.Suno.BaseURL, cfg.Suno.Timeout()),
		saver:  download.New(cfg, nil, bootstrap.Log),
		policy: suno.PollPolicy{Interval: cfg.Suno.PollInterval(), Attempts: cfg.Suno.PollAttempts},
		log:    bootstrap.Log,
		out:    os.Stdout,
	}

	err = a.execute(ctx, flags)
	if err != nil {
		bootstrap.Log.Error("Action %s failed: %v", flags.action, err)

		return err
	}

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var (
		flags appFlags
		ids   string
	)

	flagSet := flag.NewFlagSet(logFileName, flag.ContinueOnError)
	flagSet.StringVar(&flags.action, flagAction, actionDemo, flagActionDesc)
	flagSet.StringVar(&flags.prompt, flagPrompt, "", flagPromptDesc)
	flagSet.StringVar(&flags.tags, flagTags, "", flagTagsDesc)
	flagSet.StringVar(&flags.title, flagTitle, "", flagTitleDesc)
	flagSet.BoolVar(&flags.instrumental, flagInstrumental, false, flagInstrumentalDesc)
	flagSet.BoolVar(&flags.wait, flagWait, false, flagWaitDesc)
	flagSet.StringVar(&ids, flagIDs, "", flagIDsDesc)
	flagSet.Float64Var(&flags.continueAt, flagContinueAt, 0, flagContinueAtDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return flags, err
	}

	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			flags.ids = append(flags.ids, id)
		}
	}

	return flags, nil
}

// validateFlags checks that each action has the inputs it needs.
func validateFlags(flags appFlags) error {
	switch flags.action {
	case actionGenerate, actionDemo:
		if strings.TrimSpace(flags.prompt) == "" {
			return errPromptNeeded
		}
	case actionCustomGenerate:
		if strings.TrimSpace(flags.prompt) == "" && !flags.instrumental {
			return errPromptNeeded
		}
	case actionExtend, actionGet, actionClip, actionConcat:
		if len(flags.ids) == 0 {
			return errIDsNeeded
		}
	case actionQuota:
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, flags.action)
	}

	return nil
}

func (a *app) execute(ctx context.Context, flags appFlags) error {
	var (
		result any
		err    error
	)

	switch flags.action {
	case actionGenerate:
		result, err = a.client.Generate(ctx, suno.GenerateRequest{
			Prompt:           flags.prompt,
			MakeInstrumental: flags.instrumental,
			WaitAudio:        flags.wait,
		})
	case actionCustomGenerate:
		result, err = a.client.CustomGenerate(ctx, suno.CustomGenerateRequest{
			Prompt:           flags.prompt,
			Tags:             flags.tags,
			Title:            flags.title,
			MakeInstrumental: flags.instrumental,
			WaitAudio:        flags.wait,
		})
	case actionExtend:
		result, err = a.client.ExtendAudio(ctx, suno.ExtendRequest{
			AudioID:    flags.ids[0],
			Prompt:     flags.prompt,
			ContinueAt: flags.continueAt,
			Title:      flags.title,
			Tags:       flags.tags,
		})
	case actionGet:
		result, err = a.client.GetAudioInformation(ctx, flags.ids...)
	case actionQuota:
		result, err = a.client.GetQuota(ctx)
	case actionClip:
		result, err = a.client.GetClip(ctx, flags.ids[0])
	case actionConcat:
		result, err = a.client.Concat(ctx, flags.ids[0])
	case actionDemo:
		return a.demo(ctx, flags)
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, flags.action)
	}

	if err != nil {
		return err
	}

	return cli.PrintJSON(a.out, result)
}

// demo submits a prompt, waits for the first clip to stream and prints each
// clip's audio URL.
func (a *app) demo(ctx context.Context, flags appFlags) error {
	raw, clips, err := a.client.GenerateRaw(ctx, suno.GenerateRequest{
		Prompt:           flags.prompt,
		MakeInstrumental: flags.instrumental,
		WaitAudio:        false,
	})
	if raw != nil {
		_, saveErr := a.saver.SaveRawResponse(raw, "")
		if saveErr != nil {
			a.log.Warn("Failed to archive generate response: %v", saveErr)
		}
	}

	if err != nil {
		return err
	}

	ids := suno.IDs(clips)
	fmt.Fprintf(a.out, "ids: %s\n", strings.Join(ids, ","))

	ready, err := suno.WaitForStreaming(ctx, a.client, ids, a.policy, a.log)
	if err != nil {
		return err
	}

	for _, clip := range ready {
		fmt.Fprintf(a.out, "%s ==> %s\n", clip.ID, clip.AudioURL)
	}

	return nil
}
