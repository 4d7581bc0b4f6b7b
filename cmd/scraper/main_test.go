package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jirascraper/api"
	"jirascraper/models"
	"jirascraper/services"
	"jirascraper/utils"
)

// newFakeJira はプロジェクト A に2件、それ以外は0件を返す検索APIです
func newFakeJira(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("jql"), "project = A ") || r.URL.Query().Get("startAt") != "0" {
			_, _ = w.Write([]byte(`{"startAt":0,"total":0,"issues":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"startAt":0,"total":2,"issues":[
			{"key":"A-1","fields":{"summary":"one"}},
			{"key":"A-2","fields":{"summary":"two"}}
		]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

// setEnv はテスト用の環境変数を設定し、作業ディレクトリを返します
func setEnv(t *testing.T, jiraURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("JIRA_URL", jiraURL)
	t.Setenv("JIRA_EMAIL", "")
	t.Setenv("JIRA_API_TOKEN", "")
	t.Setenv("JIRA_PROJECTS", "A,B")
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("RETRY_BASE_DELAY", "1ms")
	t.Setenv("RETRY_MAX_DELAY", "1ms")
	t.Setenv("OUTPUT_FILE", filepath.Join(dir, "env_output.jsonl"))
	t.Setenv("STATE_FILE", filepath.Join(dir, "env_state.json"))
	t.Setenv("LOG_LEVEL", "error")
	t.Cleanup(func() { utils.SetLogLevel("info") })
	return dir
}

func execute(ctx context.Context, args ...string) (*app, string, error) {
	a := &app{}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return a, out.String(), err
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	dir := setEnv(t, "http://jira.invalid")
	output := filepath.Join(dir, "flag_output.jsonl")
	state := filepath.Join(dir, "flag_state.json")

	a, _, err := execute(context.Background(), "state",
		"--projects", "X, Y",
		"--page-size", "7",
		"--output", output,
		"--state", state,
		"--log-level", "debug",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "Y"}, a.cfg.Projects)
	assert.Equal(t, 7, a.cfg.PageSize)
	assert.Equal(t, output, a.cfg.OutputFile)
	assert.Equal(t, state, a.cfg.StateFile)
	assert.Equal(t, "debug", a.cfg.LogLevel)
}

func TestUnsetFlagsKeepEnvironment(t *testing.T) {
	dir := setEnv(t, "http://jira.invalid")

	a, _, err := execute(context.Background(), "state")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, a.cfg.Projects)
	assert.Equal(t, 50, a.cfg.PageSize)
	assert.Equal(t, filepath.Join(dir, "env_output.jsonl"), a.cfg.OutputFile)
	assert.Equal(t, filepath.Join(dir, "env_state.json"), a.cfg.StateFile)
	assert.Equal(t, "error", a.cfg.LogLevel)
}

func TestInvalidFlagValuesAreRejected(t *testing.T) {
	tests := map[string][]string{
		"negative page size": {"state", "--page-size", "-5"},
		"zero page size":     {"state", "--page-size", "0"},
		"empty projects":     {"state", "--projects", " , "},
		"empty output":       {"stats", "--output", ""},
		"empty state":        {"reset", "--state", ""},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			setEnv(t, "http://jira.invalid")

			a, _, err := execute(context.Background(), args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "設定が不正です")
			assert.Nil(t, a.cfg)
			assert.Equal(t, exitFailure, exitCode(err))
		})
	}
}

func TestResetWritesInitialCursor(t *testing.T) {
	dir := setEnv(t, "http://jira.invalid")
	state := filepath.Join(dir, "state.json")
	require.NoError(t, services.NewStateStore(state).Save(models.Cursor{SourceIndex: 1, Offset: 50}))

	_, _, err := execute(context.Background(), "reset", "--state", state)
	require.NoError(t, err)

	data, err := os.ReadFile(state)
	require.NoError(t, err)
	var cursor models.Cursor
	require.NoError(t, json.Unmarshal(data, &cursor))
	assert.Equal(t, models.Cursor{}, cursor)

	_, err = os.Stat(filepath.Join(dir, "env_output.jsonl"))
	assert.True(t, os.IsNotExist(err), "reset must not touch the output file")
}

func TestStateListsProjects(t *testing.T) {
	dir := setEnv(t, "http://jira.invalid")
	state := filepath.Join(dir, "state.json")
	require.NoError(t, services.NewStateStore(state).Save(models.Cursor{SourceIndex: 1, Offset: 20}))

	_, out, err := execute(context.Background(), "state", "--state", state, "--projects", "SPARK,KAFKA,BEAM")
	require.NoError(t, err)

	for _, want := range []string{"SPARK", "KAFKA", "BEAM", services.ProjectDone, services.ProjectInProgress, services.ProjectPending, "20"} {
		assert.Contains(t, out, want)
	}
}

func TestRunScrapesAllProjects(t *testing.T) {
	server := newFakeJira(t)
	dir := setEnv(t, server.URL)

	for _, args := range [][]string{{"run"}, {}} {
		t.Run(fmt.Sprintf("args=%v", args), func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "out.jsonl")
			state := filepath.Join(dir, fmt.Sprintf("state_%d.json", len(args)))

			_, _, err := execute(context.Background(), append(args, "--output", output, "--state", state)...)
			require.NoError(t, err)
			assert.Equal(t, exitOK, exitCode(err))

			result, err := services.ReadRecords(output)
			require.NoError(t, err)
			require.Len(t, result.Records, 2)
			assert.Equal(t, "A-1", result.Records[0].ID)
			assert.Equal(t, "A-2", result.Records[1].ID)

			cursor, err := services.NewStateStore(state).Load()
			require.NoError(t, err)
			assert.Equal(t, models.Cursor{SourceIndex: 2}, cursor)
		})
	}
}

func TestRunCanceledExitsInterrupted(t *testing.T) {
	server := newFakeJira(t)
	dir := setEnv(t, server.URL)
	state := filepath.Join(dir, "state.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := execute(ctx, "run", "--state", state)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, api.IsFatal(err))
	assert.Equal(t, exitInterrupted, exitCode(err))

	_, statErr := os.Stat(state)
	assert.True(t, os.IsNotExist(statErr), "state must not be saved on interrupt")
}

func TestRunClientErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessages":["bad jql"]}`))
	}))
	defer server.Close()
	dir := setEnv(t, server.URL)
	state := filepath.Join(dir, "state.json")
	require.NoError(t, services.NewStateStore(state).Save(models.Cursor{Offset: 4}))

	_, _, err := execute(context.Background(), "run", "--state", state)
	require.Error(t, err)
	assert.True(t, api.IsFatal(err))
	assert.Equal(t, exitFailure, exitCode(err))

	cursor, err := services.NewStateStore(state).Load()
	require.NoError(t, err)
	assert.Equal(t, models.Cursor{Offset: 4}, cursor)
}

func TestExitCode(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"success":          {nil, exitOK},
		"canceled":         {context.Canceled, exitInterrupted},
		"wrapped canceled": {fmt.Errorf("プロジェクト A の取得に失敗: %w", context.Canceled), exitInterrupted},
		"fetch failure":    {&api.FetchError{URL: "http://jira.invalid", StatusCode: 400, Attempts: 1}, exitFailure},
		"other failure":    {errors.New("disk full"), exitFailure},
		"deadline":         {context.DeadlineExceeded, exitFailure},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
			reportError(tc.err)
		})
	}
}
