// lipsync sends a face and an audio track to the Gooey.AI lipsync workflow
// and prints the response.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/book-expert/songgen/internal/cli"
	"github.com/book-expert/songgen/internal/datauri"
	"github.com/book-expert/songgen/internal/gooey"
)

// Flag names.
const (
	flagPayload = "payload"
	flagFace    = "face"
	flagAudio   = "audio"
)

// Flag descriptions.
const (
	flagPayloadDesc = "JSON object sent as the request body"
	flagFaceDesc    = "Local image or video used as input_face"
	flagAudioDesc   = "Local audio used as input_audio"
)

const logFileName = "lipsync"

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	payload string
	face    string
	audio   string
}

// lipsyncer is the subset of *gooey.Client used here.
type lipsyncer interface {
	Lipsync(ctx context.Context, payload map[string]any) (*gooey.Result, error)
}

func main() {
	cli.Exit(run())
}

func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	payload, err := buildPayload(flags)
	if err != nil {
		return err
	}

	bootstrap, err := cli.Bootstrap(logFileName)
	if err != nil {
		return err
	}
	defer bootstrap.Close()

	client, err := gooey.NewClient(bootstrap.Config.Gooey, bootstrap.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = execute(ctx, client, payload, os.Stdout)
	if err != nil {
		bootstrap.Log.Error("Lipsync failed: %v", err)

		return err
	}

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet(logFileName, flag.ContinueOnError)
	flagSet.StringVar(&flags.payload, flagPayload, "", flagPayloadDesc)
	flagSet.StringVar(&flags.face, flagFace, "", flagFaceDesc)
	flagSet.StringVar(&flags.audio, flagAudio, "", flagAudioDesc)

	err := flagSet.Parse(args)

	return flags, err
}

// buildPayload starts from -payload and inlines local files as data URIs.
// An empty payload is sent as {}.
func buildPayload(flags appFlags) (map[string]any, error) {
	payload := map[string]any{}

	if flags.payload != "" {
		err := json.Unmarshal([]byte(flags.payload), &payload)
		if err != nil {
			return nil, fmt.Errorf("invalid -%s: %w", flagPayload, err)
		}
	}

	faceURI, err := encodeFile(flags.face)
	if err != nil {
		return nil, err
	}

	audioURI, err := encodeFile(flags.audio)
	if err != nil {
		return nil, err
	}

	for field, uri := range gooey.LipsyncPayload(faceURI, audioURI) {
		if uri != "" {
			payload[field] = uri
		}
	}

	return payload, nil
}

// encodeFile returns path as a data URI, or "" when path is unset.
func encodeFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	return datauri.EncodeFile(path)
}

// execute prints the status code and the decoded response body.
func execute(ctx context.Context, client lipsyncer, payload map[string]any, out io.Writer) error {
	result, err := client.Lipsync(ctx, payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(result.Body)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	fmt.Fprintf(out, "%d %s\n", result.StatusCode, body)

	video, err := result.OutputVideo()
	if err == nil {
		fmt.Fprintf(out, "Output video: %s\n", video)
	}

	return nil
}
