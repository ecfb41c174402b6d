package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/arrestlog/constants"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, constants.StrategyBlocks, cfg.Extract.Strategy)
	assert.True(t, cfg.Extract.FieldStreamEnabled)
	assert.Len(t, cfg.Extract.Fields, 5)
	assert.Equal(t, []string{"VC", "PC", "HS", "BP"}, cfg.Extract.Codes)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ARRESTLOG_STRATEGY", "fields")
	t.Setenv("ARRESTLOG_FIELD_STREAM_ENABLED", "false")
	t.Setenv("ARRESTLOG_WORKERS", "8")
	t.Setenv("ARRESTLOG_CODES", "VC, PC ,,")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DIAL_TIMEOUT", "7s")
	t.Setenv("MINIO_SECURE", "false")

	cfg := LoadConfig()
	assert.Equal(t, "fields", cfg.Extract.Strategy)
	assert.False(t, cfg.Extract.FieldStreamEnabled)
	assert.Equal(t, 8, cfg.Extract.Workers)
	assert.Equal(t, []string{"VC", "PC"}, cfg.Extract.Codes)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 7*time.Second, cfg.Database.DialTimeout)
	assert.False(t, cfg.Source.Bucket.Secure)
}

func TestLoadConfig_BadEnvKeepsDefault(t *testing.T) {
	t.Setenv("ARRESTLOG_WORKERS", "many")
	t.Setenv("ARRESTLOG_PRECLEAN", "maybe")
	cfg := LoadConfig()
	assert.Equal(t, 4, cfg.Extract.Workers)
	assert.True(t, cfg.Extract.Preclean)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arrestlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
extract:
  strategy: fields
  workers: 2
  fields:
    - name: case number
      label: "CASE NO"
      locator: next_line
database:
  driver: sqlite
  dsn: "file::memory:"
  dial_timeout: 10s
log:
  level: debug
`), 0o644))
	t.Setenv("ARRESTLOG_WORKERS", "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fields", cfg.Extract.Strategy)
	assert.Equal(t, 6, cfg.Extract.Workers, "env wins over file")
	require.Len(t, cfg.Extract.Fields, 1)
	assert.Equal(t, "CASE NO", cfg.Extract.Fields[0].Label)
	assert.Equal(t, "Case Number", cfg.Extract.Anchor, "untouched keys keep defaults")
	assert.Equal(t, 10*time.Second, cfg.Database.DialTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  grpc_addr: \":9999\"\n"), 0o644))
	t.Setenv("ARRESTLOG_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.GRPCAddr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extract: [unclosed"), 0o644))
	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extract.Strategy = "columns"
	cfg.Extract.Workers = 0
	cfg.Extract.Fields = append(cfg.Extract.Fields, FieldLabel{Name: "shoe_size", Label: "Shoe", Locator: "below"})
	cfg.Database.DSN = "mysql://x"
	cfg.Database.Driver = "mysql"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	msg := err.Error()
	for _, field := range []string{"extract.strategy", "extract.workers", "extract.fields[5].name", "extract.fields[5].locator", "database.driver"} {
		assert.Contains(t, msg, field)
	}
}

func TestValidator_Rules(t *testing.T) {
	v := NewValidator().
		Field("a", "", Required).
		Field("b", "xyz", MaxLength(2)).
		Field("c", "x", OneOf("y", "z")).
		Field("d", 0, AtLeast(1)).
		Field("g", 3, AtMost(2)).
		Field("h", 2, AtMost(2)).
		Field("e", "not-a-uuid", UUID).
		Field("f", "date arrest", CanonicalField)

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 6)
	require.ErrorIs(t, v.Error(), ErrValidation)
	assert.Nil(t, NewValidator().Error())

	st, ok := status.FromError(ValidateAndReturnError(v))
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{NewAppError("BAD", "nope", ErrInvalidInput), codes.InvalidArgument},
		{WrapError(ErrUnsupportedFormat, "decode"), codes.InvalidArgument},
		{WrapError(ErrNotFound, "run"), codes.NotFound},
		{WrapError(ErrSource, "list"), codes.Unavailable},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Internal},
		{NotFoundError("x"), codes.NotFound},
	}
	for _, tc := range cases {
		st, ok := status.FromError(ToStatus(tc.err))
		require.True(t, ok)
		assert.Equal(t, tc.code, st.Code(), tc.err.Error())
	}
	assert.NoError(t, ToStatus(nil))
	assert.NoError(t, WrapError(nil, "x"))
}

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-1")

	LoggerFrom(ctx, base).Info("hello")
	assert.Contains(t, buf.String(), "request_id=req-1")
	assert.Contains(t, buf.String(), "run_id=run-1")
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	c := DefaultConfig()
	c.Log.Level = "warn"
	l := NewLogger(c, &buf)
	l.Info("hidden")
	l.Warn("export.csv.ok", "records", 3)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"export.csv.ok"`)

	buf.Reset()
	c.Log.Format = "text"
	NewLogger(c, &buf).Warn("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
