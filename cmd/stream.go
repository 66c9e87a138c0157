package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/RubachokBoss/speech-sdk/pkg/audio"
	"github.com/RubachokBoss/speech-sdk/pkg/client"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

// streamFile opens the websocket, replays the wave file at path through fn
// and closes the connection again.
func streamFile(cmd *cobra.Command, args []string, fn func(ctx context.Context, c *client.Client, rec audio.Recorder) (interface{}, error)) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	pace, _ := cmd.Flags().GetBool("pace")

	rec, err := audio.NewWAVFileRecorder(args[2], pace, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	if _, err := c.Open(ctx); err != nil {
		return err
	}
	defer closeQuietly(c, log)

	result, err := fn(ctx, c, rec)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func closeQuietly(c *client.Client, log zerolog.Logger) {
	if _, err := c.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to close websocket connection")
	}
}

var recordCmd = &cobra.Command{
	Use:   "record ORG CHALLENGE FILE.wav",
	Short: "Stream a wave file as a speech recording",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return streamFile(cmd, args, func(ctx context.Context, c *client.Client, rec audio.Recorder) (interface{}, error) {
			return c.SpeechRecordings.Record(ctx, args[0], args[1], rec)
		})
	},
}

var recogniseCmd = &cobra.Command{
	Use:     "recognise ORG CHALLENGE FILE.wav",
	Aliases: []string{"recognize"},
	Short:   "Stream a wave file for choice recognition",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return streamFile(cmd, args, func(ctx context.Context, c *client.Client, rec audio.Recorder) (interface{}, error) {
			return c.ChoiceRecognitions.Recognise(ctx, args[0], args[1], rec)
		})
	},
}

var analyseCmd = &cobra.Command{
	Use:     "analyse ORG CHALLENGE FILE.wav",
	Aliases: []string{"analyze"},
	Short:   "Stream a wave file for pronunciation analysis",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		showProgress, _ := cmd.Flags().GetBool("progress")
		return streamFile(cmd, args, func(ctx context.Context, c *client.Client, rec audio.Recorder) (interface{}, error) {
			var progress func(*models.PronunciationAnalysis)
			if showProgress {
				progress = func(partial *models.PronunciationAnalysis) {
					fmt.Fprintf(cmd.ErrOrStderr(), "progress: score %.2f, %d words\n", partial.Score, len(partial.Words))
				}
			}
			return c.PronunciationAnalyses.Analyse(ctx, args[0], args[1], rec, progress)
		})
	},
}

func init() {
	rootCmd.AddCommand(recordCmd, recogniseCmd, analyseCmd)

	for _, c := range []*cobra.Command{recordCmd, recogniseCmd, analyseCmd} {
		c.Flags().Bool("pace", false, "replay the file in real time instead of as fast as possible")
	}
	analyseCmd.Flags().Bool("progress", false, "print partial analyses to stderr")
}
