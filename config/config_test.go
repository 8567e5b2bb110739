// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "httpfsm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func valid() *Config {
	return &Config{
		Pool:  PoolConfig{Size: 1},
		Retry: RetryConfig{Max: 1, Codes: []string{"500"}, Base: time.Second},
		FSM:   FSMConfig{Transitions: 10},
		Log:   LogConfig{Level: "info"},
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 25, cfg.Pool.Size)
	assert.Equal(t, 3, cfg.Retry.Max)
	assert.Equal(t, []string{"500", "503", "transient"}, cfg.Retry.Codes)
	assert.Equal(t, time.Second, cfg.Retry.Base)
	assert.Equal(t, 0.0, cfg.Retry.Budget.Rate)
	assert.Equal(t, 0, cfg.Retry.Budget.Burst)
	assert.Equal(t, 200, cfg.FSM.Transitions)
	assert.Equal(t, 5, cfg.Redirect.Max)
	assert.Equal(t, time.Duration(0), cfg.Timeout.Attempt)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
}

func TestLoadWithFile(t *testing.T) {
	path := writeYAML(t, `
pool:
  size: 4
retry:
  max: 5
  codes: ["429", "conn_reset"]
  base: 250ms
  budget:
    rate: 2.5
    burst: 3
redirect:
  max: -1
timeout:
  attempt: 2s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pool.Size)
	assert.Equal(t, 5, cfg.Retry.Max)
	assert.Equal(t, []string{"429", "conn_reset"}, cfg.Retry.Codes)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Base)
	assert.Equal(t, 2.5, cfg.Retry.Budget.Rate)
	assert.Equal(t, 3, cfg.Retry.Budget.Burst)
	assert.Equal(t, 200, cfg.FSM.Transitions)
	assert.Equal(t, -1, cfg.Redirect.Max)
	assert.Equal(t, 2*time.Second, cfg.Timeout.Attempt)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	path := writeYAML(t, "pool:\n  size: 4\nlog:\n  level: debug\n")
	t.Setenv("HTTPFSM_POOL_SIZE", "7")
	t.Setenv("HTTPFSM_RETRY_BASE", "3s")
	t.Setenv("HTTPFSM_RETRY_CODES", "429, transient,")
	t.Setenv("HTTPFSM_LOG_PRETTY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pool.Size)
	assert.Equal(t, 3*time.Second, cfg.Retry.Base)
	assert.Equal(t, []string{"429", "transient"}, cfg.Retry.Codes)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, "debug", cfg.Log.Level)

	d, err := cfg.Decider()
	require.NoError(t, err)
	assert.True(t, d.Decide(&request.Transaction{Response: &http.Response{StatusCode: 429}}))
	assert.True(t, d.Decide(&request.Transaction{Err: syscall.ECONNRESET}))
	assert.False(t, d.Decide(&request.Transaction{Response: &http.Response{StatusCode: 503}}))
}

func TestEnvValue(t *testing.T) {
	testCases := []struct {
		name  string
		env   string
		value string
		key   string
		want  interface{}
	}{
		{"scalar", "HTTPFSM_POOL_SIZE", "7", "pool.size", "7"},
		{"scalar with comma", "HTTPFSM_LOG_LEVEL", "a,b", "log.level", "a,b"},
		{"list", "HTTPFSM_RETRY_CODES", "500,503", "retry.codes", []string{"500", "503"}},
		{"list with blanks", "HTTPFSM_RETRY_CODES", " 429 ,, Slow Down ", "retry.codes", []string{"429", "Slow Down"}},
		{"single", "HTTPFSM_RETRY_CODES", "transient", "retry.codes", []string{"transient"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			key, value := envValue(testCase.env, testCase.value)
			assert.Equal(t, testCase.key, key)
			assert.Equal(t, testCase.want, value)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.yaml")
	})
	t.Run("malformed file", func(t *testing.T) {
		_, err := Load(writeYAML(t, "pool: [\n"))
		assert.Error(t, err)
	})
	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("HTTPFSM_POOL_SIZE", "0")
		_, err := Load("")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalid))
		assert.Contains(t, err.Error(), "pool.size=0")
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"pool size", func(c *Config) { c.Pool.Size = 0 }, "pool.size"},
		{"negative retries", func(c *Config) { c.Retry.Max = -1 }, "retry.max"},
		{"negative base", func(c *Config) { c.Retry.Base = -time.Second }, "retry.base"},
		{"negative rate", func(c *Config) { c.Retry.Budget.Rate = -1 }, "retry.budget.rate"},
		{"rate without burst", func(c *Config) { c.Retry.Budget.Rate = 1 }, "retry.budget.burst"},
		{"transitions", func(c *Config) { c.FSM.Transitions = 0 }, "fsm.transitions"},
		{"negative timeout", func(c *Config) { c.Timeout.Attempt = -1 }, "timeout.attempt"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"empty code", func(c *Config) { c.Retry.Codes = []string{"500", " "} }, "retry.codes"},
		{"bad status code", func(c *Config) { c.Retry.Codes = []string{"42"} }, "retry.codes"},
	}

	require.NoError(t, valid().Validate())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tc.key+"=")
		})
	}
}

func TestConfig_Decider(t *testing.T) {
	respond := func(code int, status string) *request.Transaction {
		return &request.Transaction{Response: &http.Response{StatusCode: code, Status: status}}
	}

	t.Run("mixed codes", func(t *testing.T) {
		cfg := valid()
		cfg.Retry.Codes = []string{"429", "Slow Down", "conn_refused"}
		d, err := cfg.Decider()
		require.NoError(t, err)

		assert.True(t, d.Decide(respond(429, "429 Too Many Requests")))
		assert.True(t, d.Decide(respond(503, "503 Slow Down")))
		assert.True(t, d.Decide(&request.Transaction{Err: syscall.ECONNREFUSED}))
		assert.False(t, d.Decide(&request.Transaction{Err: syscall.ECONNRESET}))
		assert.False(t, d.Decide(respond(500, "500 Internal Server Error")))
	})
	t.Run("transient", func(t *testing.T) {
		cfg := valid()
		cfg.Retry.Codes = []string{"TRANSIENT"}
		d, err := cfg.Decider()
		require.NoError(t, err)
		assert.True(t, d.Decide(&request.Transaction{Err: syscall.ECONNRESET}))
		assert.False(t, d.Decide(respond(503, "")))
	})
	t.Run("no codes", func(t *testing.T) {
		cfg := valid()
		cfg.Retry.Codes = nil
		d, err := cfg.Decider()
		require.NoError(t, err)
		assert.True(t, d.Decide(respond(503, "")))
	})
}

func TestConfig_Backoff(t *testing.T) {
	cfg := valid()
	cfg.Retry.Max = 4
	cfg.Retry.Base = 10 * time.Millisecond
	b, err := cfg.Backoff(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, b.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, b.Delay(1))
	assert.Nil(t, b.Budget)

	cfg.Retry.Budget = BudgetConfig{Rate: 2, Burst: 5}
	b, err = cfg.Backoff(nil)
	require.NoError(t, err)
	require.NotNil(t, b.Budget)
	assert.Equal(t, 5, b.Budget.Burst())
}

func TestConfig_Client(t *testing.T) {
	t.Run("retries through config", func(t *testing.T) {
		cfg := valid()
		cfg.Retry.Base = 0
		m := transport.NewMock(transport.Response(500, ""), transport.Response(200, "ok"))
		c, err := cfg.Client(m, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, c.MaxTransitions)

		p, err := request.NewPlan("GET", "http://example.com/", nil)
		require.NoError(t, err)
		txn, err := c.Do(p)
		require.NoError(t, err)
		assert.Equal(t, 200, txn.StatusCode())
		assert.Equal(t, 1, txn.Attempt)
	})
	t.Run("redirects disabled", func(t *testing.T) {
		cfg := valid()
		cfg.Redirect.Max = -1
		c, err := cfg.Client(nil, nil)
		require.NoError(t, err)
		assert.True(t, c.DisableRedirects)
	})
	t.Run("redirect limit", func(t *testing.T) {
		cfg := valid()
		cfg.Redirect.Max = 2
		c, err := cfg.Client(nil, nil)
		require.NoError(t, err)
		assert.False(t, c.DisableRedirects)
		assert.Equal(t, 2, c.MaxRedirects)
	})
}

func TestConfig_Transport(t *testing.T) {
	cfg := valid()
	tr := cfg.Transport(nil)
	assert.Nil(t, tr.TimeoutPolicy)

	cfg.Timeout.Attempt = 750 * time.Millisecond
	tr = cfg.Transport(http.DefaultClient)
	require.NotNil(t, tr.TimeoutPolicy)
	assert.Equal(t, 750*time.Millisecond, tr.TimeoutPolicy.Timeout(&request.Transaction{}))
	assert.Equal(t, http.DefaultClient, tr.HTTPDoer)
}

func TestConfig_PoolOptions(t *testing.T) {
	cfg := valid()
	cfg.Pool.Size = 9
	logger := zerolog.Nop()
	opts := cfg.PoolOptions(&logger)
	assert.Equal(t, 9, opts.Size)
	assert.Equal(t, &logger, opts.Logger)
}

func TestConfig_Logger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := valid()
		cfg.Log.Level = "warn"
		logger := cfg.Logger(&buf)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"message":"shown"`)
	})
	t.Run("pretty", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := valid()
		cfg.Log.Pretty = true
		logger := cfg.Logger(&buf)
		logger.Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, strings.HasPrefix(buf.String(), "{"))
	})
	t.Run("unparseable level", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Level = "loud"
		assert.Equal(t, zerolog.InfoLevel, cfg.Logger(&bytes.Buffer{}).GetLevel())
	})
}
