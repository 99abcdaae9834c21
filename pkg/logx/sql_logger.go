package logx

import (
	"context"
	"strings"
)

// SQLLogger logs statement text before it reaches the driver.
// With ShowSQL set, statements are logged at info level regardless of the logger level;
// otherwise they go to debug.
type SQLLogger struct {
	ShowSQL bool
	Format  bool
}

// LogStatement logs sql through the package logger.
func (sl SQLLogger) LogStatement(ctx context.Context, sql string) {
	if sl.Format {
		sql = strings.Join(strings.Fields(sql), " ")
	}

	if sl.ShowSQL {
		GetLogger().LogInfo(ctx, "SQL: "+sql)
		return
	}

	GetLogger().LogDebug(ctx, "SQL: "+sql)
}
