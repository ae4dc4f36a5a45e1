package control

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-realtime/internal/control"

var logger = otelslog.NewLogger(scopeName)
