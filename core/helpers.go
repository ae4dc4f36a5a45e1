package orchestration

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/koscakluka/ema-realtime/core/tools"
	"github.com/koscakluka/ema-realtime/internal/utils"
	"github.com/sourcegraph/conc/panics"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		if recovered := panics.Try(func() { err = run(ctx) }); recovered != nil {
			return fmt.Errorf("%s worker panicked: %w", name, recovered.AsError())
		}

		if err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

const maxLoggedArgument = 80

// describeArguments renders tool arguments as sorted key=value pairs for the
// audit log.
func describeArguments(arguments map[string]any) string {
	if len(arguments) == 0 {
		return "no arguments"
	}

	parts := []string{}
	for _, key := range slices.Sorted(maps.Keys(arguments)) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, utils.Truncate(fmt.Sprint(arguments[key]), maxLoggedArgument)))
	}
	return strings.Join(parts, ", ")
}

const maxLoggedErrorBody = 200

func describeToolError(err error) string {
	var statusErr *tools.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("status %d: %s", statusErr.StatusCode, utils.Truncate(statusErr.Body, maxLoggedErrorBody))
	}
	return utils.Truncate(err.Error(), maxLoggedErrorBody)
}
