package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RubachokBoss/speech-sdk/pkg/client"
	"github.com/RubachokBoss/speech-sdk/pkg/models"
)

// withClient loads the configuration, connects and hands the client to fn.
func withClient(fn func(cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		return fn(cmd, c, args)
	}
}

// parseFilters turns repeated key=value flags into list filters.
func parseFilters(cmd *cobra.Command) (url.Values, error) {
	raw, _ := cmd.Flags().GetStringArray("filter")
	filters := url.Values{}
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", f)
		}
		filters.Add(key, value)
	}
	return filters, nil
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("filter", nil, "list filter as key=value, repeatable")
}

var organisationsCmd = &cobra.Command{
	Use:     "organisations",
	Aliases: []string{"orgs"},
	Short:   "Manage organisations",
}

var organisationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organisations",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		filters, err := parseFilters(cmd)
		if err != nil {
			return err
		}
		page, err := c.Organisations.List(cmd.Context(), filters)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), page)
	}),
}

var organisationsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one organisation",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		org, err := c.Organisations.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), org)
	}),
}

var organisationsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an organisation",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")

		org, err := models.NewOrganisation(id, name)
		if err != nil {
			return err
		}
		created, err := c.Organisations.Create(cmd.Context(), org)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), created)
	}),
}

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage the students of an organisation",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		filters, err := parseFilters(cmd)
		if err != nil {
			return err
		}
		org, _ := cmd.Flags().GetString("org")
		page, err := c.Students.List(cmd.Context(), org, filters)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), page)
	}),
}

var studentsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one student",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		student, err := c.Students.GetByID(cmd.Context(), org, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), student)
	}),
}

var studentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a student",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		flags := cmd.Flags()
		org, _ := flags.GetString("org")
		id, _ := flags.GetString("id")
		first, _ := flags.GetString("first-name")
		last, _ := flags.GetString("last-name")
		gender, _ := flags.GetString("gender")
		birthYear, _ := flags.GetInt("birth-year")

		student, err := models.NewStudent(org, id, first, last, models.Gender(gender), birthYear)
		if err != nil {
			return err
		}
		created, err := c.Students.Create(cmd.Context(), student)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), created)
	}),
}

var challengesCmd = &cobra.Command{
	Use:   "challenges",
	Short: "Manage speech, pronunciation and choice challenges",
}

const (
	kindSpeech        = "speech"
	kindPronunciation = "pronunciation"
	kindChoice        = "choice"
)

func challengeKind(cmd *cobra.Command) (string, error) {
	kind, _ := cmd.Flags().GetString("kind")
	switch kind {
	case kindSpeech, kindPronunciation, kindChoice:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown challenge kind %q, expected speech, pronunciation or choice", kind)
	}
}

var challengesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List challenges of one kind",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		kind, err := challengeKind(cmd)
		if err != nil {
			return err
		}
		filters, err := parseFilters(cmd)
		if err != nil {
			return err
		}
		org, _ := cmd.Flags().GetString("org")

		var page interface{}
		switch kind {
		case kindSpeech:
			page, err = c.SpeechChallenges.List(cmd.Context(), org, filters)
		case kindPronunciation:
			page, err = c.PronunciationChallenges.List(cmd.Context(), org, filters)
		default:
			page, err = c.ChoiceChallenges.List(cmd.Context(), org, filters)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), page)
	}),
}

var challengesGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one challenge",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		kind, err := challengeKind(cmd)
		if err != nil {
			return err
		}
		org, _ := cmd.Flags().GetString("org")

		var challenge interface{}
		switch kind {
		case kindSpeech:
			challenge, err = c.SpeechChallenges.GetByID(cmd.Context(), org, args[0])
		case kindPronunciation:
			challenge, err = c.PronunciationChallenges.GetByID(cmd.Context(), org, args[0])
		default:
			challenge, err = c.ChoiceChallenges.GetByID(cmd.Context(), org, args[0])
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), challenge)
	}),
}

var challengesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a challenge",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		kind, err := challengeKind(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		org, _ := flags.GetString("org")
		id, _ := flags.GetString("id")

		var reference []byte
		if path, _ := flags.GetString("reference-audio"); path != "" {
			if reference, err = os.ReadFile(path); err != nil {
				return fmt.Errorf("read reference audio: %w", err)
			}
		}

		var created interface{}
		switch kind {
		case kindSpeech:
			topic, _ := flags.GetString("topic")
			challenge, err := models.NewSpeechChallenge(org, id, topic, reference)
			if err != nil {
				return err
			}
			created, err = c.SpeechChallenges.Create(cmd.Context(), challenge)
			if err != nil {
				return err
			}
		case kindPronunciation:
			transcription, _ := flags.GetString("transcription")
			challenge, err := models.NewPronunciationChallenge(org, id, transcription, reference)
			if err != nil {
				return err
			}
			created, err = c.PronunciationChallenges.Create(cmd.Context(), challenge)
			if err != nil {
				return err
			}
		default:
			question, _ := flags.GetString("question")
			choices, _ := flags.GetStringArray("choice")
			challenge, err := models.NewChoiceChallenge(org, id, question, choices)
			if err != nil {
				return err
			}
			created, err = c.ChoiceChallenges.Create(cmd.Context(), challenge)
			if err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), created)
	}),
}

var challengesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a pronunciation challenge",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		kind, err := challengeKind(cmd)
		if err != nil {
			return err
		}
		if kind != kindPronunciation {
			return fmt.Errorf("only pronunciation challenges can be deleted")
		}
		org, _ := cmd.Flags().GetString("org")

		if err := c.PronunciationChallenges.Delete(cmd.Context(), org, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(organisationsCmd, studentsCmd, challengesCmd)

	organisationsCmd.AddCommand(organisationsListCmd, organisationsGetCmd, organisationsCreateCmd)
	addListFlags(organisationsListCmd)
	organisationsCreateCmd.Flags().String("id", "", "organisation id, assigned by the api when empty")
	organisationsCreateCmd.Flags().String("name", "", "organisation name")

	studentsCmd.AddCommand(studentsListCmd, studentsGetCmd, studentsCreateCmd)
	studentsCmd.PersistentFlags().String("org", "", "organisation id")
	studentsCmd.MarkPersistentFlagRequired("org")
	addListFlags(studentsListCmd)
	studentsCreateCmd.Flags().String("id", "", "student id, assigned by the api when empty")
	studentsCreateCmd.Flags().String("first-name", "", "first name")
	studentsCreateCmd.Flags().String("last-name", "", "last name")
	studentsCreateCmd.Flags().String("gender", "", "male or female")
	studentsCreateCmd.Flags().Int("birth-year", 0, "birth year")

	challengesCmd.AddCommand(challengesListCmd, challengesGetCmd, challengesCreateCmd, challengesDeleteCmd)
	challengesCmd.PersistentFlags().String("org", "", "organisation id")
	challengesCmd.PersistentFlags().String("kind", kindSpeech, "speech, pronunciation or choice")
	challengesCmd.MarkPersistentFlagRequired("org")
	addListFlags(challengesListCmd)
	challengesCreateCmd.Flags().String("id", "", "challenge id, assigned by the api when empty")
	challengesCreateCmd.Flags().String("topic", "", "speech challenge topic")
	challengesCreateCmd.Flags().String("transcription", "", "pronunciation challenge transcription")
	challengesCreateCmd.Flags().String("question", "", "choice challenge question")
	challengesCreateCmd.Flags().StringArray("choice", nil, "choice challenge answer, repeatable and ordered")
	challengesCreateCmd.Flags().String("reference-audio", "", "reference audio file for speech and pronunciation challenges")
}
