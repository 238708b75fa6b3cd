package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/PolarWolf314/tiaki/internal/configs"
	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
	"github.com/PolarWolf314/tiaki/internal/provider"
	"github.com/PolarWolf314/tiaki/internal/ui"
	"github.com/PolarWolf314/tiaki/internal/utils"
	"github.com/PolarWolf314/tiaki/internal/workflows"
	"github.com/briandowns/spinner"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stdout)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// sessionOptions builds the workflow options, resolving the vault passphrase
// from --passphrase, then TIAKI_PASSPHRASE, then a prompt. When required is
// false and no passphrase is given the vault stays locked. stdinBusy makes
// the prompt use the controlling terminal instead of stdin.
func sessionOptions(required, stdinBusy bool) (workflows.SessionOptions, error) {
	opts := workflows.SessionOptions{Logger: Logger}

	switch {
	case passphrase != "":
		Logger.Debugf("Using passphrase from --passphrase")
		opts.Passphrase = []byte(passphrase)
	case os.Getenv(configs.EnvPassphrase) != "":
		Logger.Debugf("Using passphrase from %s", configs.EnvPassphrase)
		opts.Passphrase = []byte(os.Getenv(configs.EnvPassphrase))
	case !required:
		Logger.Debugf("No passphrase given, key vault stays locked")
	case !stdinBusy && utils.IsTerminal():
		pass, err := utils.ReadPassphrase("Vault passphrase: ")
		if err != nil {
			return opts, err
		}
		opts.Passphrase = pass
	case utils.IsTTYAvailable():
		pass, err := utils.ReadPassphraseFromTTY("Vault passphrase: ")
		if err != nil {
			return opts, err
		}
		opts.Passphrase = pass
	default:
		return opts, fmt.Errorf("a vault passphrase is required (use --passphrase or %s)", configs.EnvPassphrase)
	}

	return opts, nil
}

// formatError renders err for the user with a hint for the errors they can
// act on.
func formatError(err error) string {
	message := ui.Error.Sprint("✗") + " " + err.Error()

	hint := ""
	switch {
	case errors.Is(err, kerrors.ErrDeviceNotE2EEnabled):
		hint = "Run " + ui.Code.Sprint("tiaki device generate") + " and " + ui.Code.Sprint("tiaki device register") + " first"
	case errors.Is(err, kerrors.ErrDevicePrivateKeyNotFound):
		hint = "This device has no key any more. Run " + ui.Code.Sprint("tiaki device flush") + " and register again"
	case errors.Is(err, kerrors.ErrParticipantsMissingE2EEncryption):
		hint = "Every participant device needs an " + ui.Code.Sprint("rsa") + " messaging key before a channel secret can be shared"
	case errors.Is(err, provider.ErrVaultLocked):
		hint = "Pass " + ui.Flag.Sprint("--passphrase") + " or set " + ui.Code.Sprint(configs.EnvPassphrase)
	case errors.Is(err, workflows.ErrNoEnvelopeForDevice):
		hint = "Pick the recipient with " + ui.Flag.Sprint("--device")
	}

	if hint != "" {
		message += "\n" + ui.Info.Sprint("→") + " " + hint
	}
	return message
}

// readFileOrStdin reads path, or stdin when path is "-".
func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return utils.ReadStdin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
