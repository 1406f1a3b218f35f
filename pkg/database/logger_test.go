package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

func captureCtx() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.WithLogger(context.Background(), zerolog.New(&buf)), &buf
}

func query() (string, int64) { return "SELECT * FROM messages", 3 }

func TestGormLogger_FailedQuery(t *testing.T) {
	ctx, buf := captureCtx()
	newGormLogger(logger.Warn).Trace(ctx, time.Now(), query, errors.New("connection refused"))

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "SELECT * FROM messages")
	assert.Contains(t, out, `"rows":3`)
}

func TestGormLogger_RecordNotFoundIsQuiet(t *testing.T) {
	ctx, buf := captureCtx()
	newGormLogger(logger.Warn).Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())
}

func TestGormLogger_SlowQuery(t *testing.T) {
	ctx, buf := captureCtx()
	newGormLogger(logger.Warn).Trace(ctx, time.Now().Add(-time.Second), query, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	newGormLogger(logger.Warn).Trace(ctx, time.Now(), query, nil)
	assert.Empty(t, buf.String())
}

func TestGormLogger_Levels(t *testing.T) {
	ctx, buf := captureCtx()

	silent := newGormLogger(logger.Warn).LogMode(logger.Silent)
	silent.Trace(ctx, time.Now(), query, errors.New("boom"))
	silent.Error(ctx, "boom %d", 1)
	assert.Empty(t, buf.String())

	info := newGormLogger(logger.Info)
	info.Trace(ctx, time.Now(), query, nil)
	assert.Contains(t, buf.String(), `"message":"query"`)

	buf.Reset()
	newGormLogger(logger.Error).Warn(ctx, "ignored %s", "warning")
	assert.Empty(t, buf.String())
	newGormLogger(logger.Warn).Warn(ctx, "kept %s", "warning")
	assert.Contains(t, buf.String(), "kept warning")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, parseLogLevel("off"))
	assert.Equal(t, logger.Error, parseLogLevel("ERROR"))
	assert.Equal(t, logger.Info, parseLogLevel("info"))
	assert.Equal(t, logger.Warn, parseLogLevel(""))
}
