// song-download saves finished songs into the songs directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/book-expert/songgen/internal/cli"
	"github.com/book-expert/songgen/internal/download"
)

// Flag names.
const (
	flagURL  = "url"
	flagClip = "clip"
	flagID   = "id"
)

// Flag descriptions.
const (
	flagURLDesc  = "Audio URL to save as <unix-seconds>.mp3"
	flagClipDesc = "Clip id whose proxy document is printed"
	flagIDDesc   = "Clip id to wait for on the CDN and save as <id>.mp3"
)

const logFileName = "song-download"

var errExactlyOne = errors.New("exactly one of -url, -clip or -id must be given")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url  string
	clip string
	id   string
}

// clipDownloader is the subset of *download.Downloader used here.
type clipDownloader interface {
	GetClip(ctx context.Context, id string) (string, error)
	DownloadMP3(ctx context.Context, url string) (string, error)
	DownloadClip(ctx context.Context, id string) (string, error)
}

func main() {
	cli.Exit(run())
}

func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	bootstrap, err := cli.Bootstrap(logFileName)
	if err != nil {
		return err
	}
	defer bootstrap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	downloader := download.New(bootstrap.Config, nil, bootstrap.Log)

	err = execute(ctx, downloader, flags, bootstrap.Config.Paths.SongsDir, os.Stdout)
	if err != nil {
		bootstrap.Log.Error("Download failed: %v", err)

		return err
	}

	return nil
}

// parseFlags defines and parses command-line flags and checks that exactly
// one mode was selected.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet(logFileName, flag.ContinueOnError)
	flagSet.StringVar(&flags.url, flagURL, "", flagURLDesc)
	flagSet.StringVar(&flags.clip, flagClip, "", flagClipDesc)
	flagSet.StringVar(&flags.id, flagID, "", flagIDDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return flags, err
	}

	selected := 0

	for _, value := range []string{flags.url, flags.clip, flags.id} {
		if value != "" {
			selected++
		}
	}

	if selected != 1 {
		return flags, errExactlyOne
	}

	return flags, nil
}

func execute(ctx context.Context, downloader clipDownloader, flags appFlags, songsDir string, out io.Writer) error {
	switch {
	case flags.clip != "":
		body, err := downloader.GetClip(ctx, flags.clip)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, body)
	case flags.url != "":
		name, err := downloader.DownloadMP3(ctx, flags.url)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Downloaded: %s\n", filepath.Join(songsDir, name))
	default:
		path, err := downloader.DownloadClip(ctx, flags.id)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Downloaded: %s\n", path)
	}

	return nil
}
