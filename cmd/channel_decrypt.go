package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/PolarWolf314/tiaki/internal/e2e"
	"github.com/PolarWolf314/tiaki/internal/utils"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/spf13/cobra"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt [content|-]",
	Short: "Decrypt message content with a channel secret",
	Long: `Decrypts encrypted content as printed by encrypt. content is the JSON
itself, a path to a file holding it, or - for stdin.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting decrypt command")

		contentOpts, stdinBusy, err := loadContentOptions(args)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		content, err := readContent(args)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		contentOpts.SessionOptions, err = sessionOptions(true, stdinBusy)
		if err != nil {
			return Logger.ErrorfAndReturn("%v", err)
		}

		result, err := workflows.Decrypt(cmd.Context(), workflows.DecryptOptions{
			ContentOptions: contentOpts,
			Content:        content,
		})
		if err != nil {
			return fmt.Errorf("%s", formatError(err))
		}
		Logger.Infof("Decrypted with key %s", result.KeyID)

		return writeOutput([]byte(result.Plaintext))
	},
}

func readContent(args []string) (e2e.EncryptedContent, error) {
	var content e2e.EncryptedContent

	input, err := utils.ReadInput(args)
	if err != nil {
		return content, err
	}

	raw := strings.TrimSpace(input)
	if !strings.HasPrefix(raw, "{") {
		data, err := os.ReadFile(raw)
		if err != nil {
			return content, fmt.Errorf("failed to read %s: %w", raw, err)
		}
		raw = string(data)
	}

	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return content, fmt.Errorf("failed to parse encrypted content: %w", err)
	}
	return content, nil
}
