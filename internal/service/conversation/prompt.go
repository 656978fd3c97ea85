package conversation

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
)

// composeUserContent prefixes extracted file text as a context block.
func composeUserContent(text, fileName, fileText string) string {
	if fileText == "" {
		return text
	}
	return fmt.Sprintf("File content (%s):\n%s\n\nUser question:\n%s", fileName, fileText, text)
}

// FormatBackendError renders a failure as the assistant message shown in the transcript.
func FormatBackendError(backendName string, err error) string {
	var failure *completion.Failure
	if errors.As(err, &failure) && failure.Backend != "" {
		backendName = failure.Backend
	}
	return fmt.Sprintf("[%s API error: %v]", backendName, err)
}
