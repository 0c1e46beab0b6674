// fal-submit queues a fal.ai generation job, waits for it and prints the
// result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/book-expert/songgen/internal/cli"
	"github.com/book-expert/songgen/internal/datauri"
	"github.com/book-expert/songgen/internal/fal"
)

// Flag names.
const (
	flagModel    = "model"
	flagArgs     = "args"
	flagPrompt   = "prompt"
	flagImage    = "image"
	flagAudio    = "audio"
	flagImageKey = "image-key"
	flagAudioKey = "audio-key"
	flagSync     = "sync"
	flagSaveDir  = "save-dir"
)

// Flag descriptions.
const (
	flagModelDesc    = "Model id, e.g. fal-ai/lora or fal-ai/sadtalker"
	flagArgsDesc     = "JSON object of model arguments"
	flagPromptDesc   = "Shortcut for the \"prompt\" argument"
	flagImageDesc    = "Local image sent as a data URI"
	flagAudioDesc    = "Local audio sent as a data URI"
	flagImageKeyDesc = "Argument name for -image"
	flagAudioKeyDesc = "Argument name for -audio"
	flagSyncDesc     = "Call the synchronous endpoint instead of the queue"
	flagSaveDirDesc  = "Download produced images and videos into this directory"
)

// Argument defaults.
const (
	defaultLoraBase = "stabilityai/stable-diffusion-xl-base-1.0"
	defaultImageKey = "source_image_url"
	defaultAudioKey = "driven_audio_url"
	argPrompt       = "prompt"
	argModelName    = "model_name"
)

const logFileName = "fal-submit"

var errNoArguments = errors.New("no model arguments given")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	model    string
	args     string
	prompt   string
	image    string
	audio    string
	imageKey string
	audioKey string
	sync     bool
	saveDir  string
}

func main() {
	cli.Exit(run())
}

func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	args, err := buildArgs(flags)
	if err != nil {
		return err
	}

	bootstrap, err := cli.Bootstrap(logFileName)
	if err != nil {
		return err
	}
	defer bootstrap.Close()

	client, err := fal.NewClient(bootstrap.Config.Fal, bootstrap.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := submit(ctx, client, flags, args)
	if err != nil {
		bootstrap.Log.Error("fal job for %s failed: %v", flags.model, err)

		return err
	}

	return report(ctx, result, flags.saveDir, os.Stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet(logFileName, flag.ContinueOnError)
	flagSet.StringVar(&flags.model, flagModel, fal.ModelLora, flagModelDesc)
	flagSet.StringVar(&flags.args, flagArgs, "", flagArgsDesc)
	flagSet.StringVar(&flags.prompt, flagPrompt, "", flagPromptDesc)
	flagSet.StringVar(&flags.image, flagImage, "", flagImageDesc)
	flagSet.StringVar(&flags.audio, flagAudio, "", flagAudioDesc)
	flagSet.StringVar(&flags.imageKey, flagImageKey, defaultImageKey, flagImageKeyDesc)
	flagSet.StringVar(&flags.audioKey, flagAudioKey, defaultAudioKey, flagAudioKeyDesc)
	flagSet.BoolVar(&flags.sync, flagSync, false, flagSyncDesc)
	flagSet.StringVar(&flags.saveDir, flagSaveDir, "", flagSaveDirDesc)

	err := flagSet.Parse(args)

	return flags, err
}

// buildArgs merges -args with the prompt shortcut and any local files,
// which are inlined as data URIs.
func buildArgs(flags appFlags) (map[string]any, error) {
	args := map[string]any{}

	if flags.args != "" {
		err := json.Unmarshal([]byte(flags.args), &args)
		if err != nil {
			return nil, fmt.Errorf("invalid -%s: %w", flagArgs, err)
		}
	}

	if flags.prompt != "" {
		args[argPrompt] = flags.prompt
	}

	files := []struct{ path, key string }{
		{flags.image, flags.imageKey},
		{flags.audio, flags.audioKey},
	}

	for _, file := range files {
		if file.path == "" {
			continue
		}

		uri, err := datauri.EncodeFile(file.path)
		if err != nil {
			return nil, err
		}

		args[file.key] = uri
	}

	if flags.model == fal.ModelLora {
		if _, ok := args[argModelName]; !ok {
			args[argModelName] = defaultLoraBase
		}
	}

	if len(args) == 0 {
		return nil, errNoArguments
	}

	return args, nil
}

// jobRunner is the subset of *fal.Client used here.
type jobRunner interface {
	Submit(ctx context.Context, model string, args map[string]any) (*fal.Handle, error)
	Run(ctx context.Context, model string, args map[string]any) (json.RawMessage, error)
}

func submit(ctx context.Context, client jobRunner, flags appFlags, args map[string]any) (json.RawMessage, error) {
	if flags.sync {
		return client.Run(ctx, flags.model, args)
	}

	handle, err := client.Submit(ctx, flags.model, args)
	if err != nil {
		return nil, err
	}

	return handle.Get(ctx)
}

// report prints the result and optionally saves its media.
func report(ctx context.Context, result json.RawMessage, saveDir string, out io.Writer) error {
	var decoded any

	err := json.Unmarshal(result, &decoded)
	if err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	err = cli.PrintJSON(out, decoded)
	if err != nil {
		return err
	}

	if saveDir == "" {
		return nil
	}

	paths, err := fal.SaveOutputs(ctx, result, saveDir)
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Fprintf(out, "Saved: %s\n", path)
	}

	return nil
}
