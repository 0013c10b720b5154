package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaonanln/edgegate/dispatcher"
	"github.com/xiaonanln/edgegate/gateway/gatewayserver"
	"github.com/xiaonanln/edgegate/util/logger"
	"github.com/xiaonanln/edgegate/util/testutil"
)

func startGateway(t *testing.T, replicaID, kernelBody string) string {
	t.Helper()
	server, err := gatewayserver.NewGatewayServer(&gatewayserver.GatewayServerConfig{
		ListenAddress: "localhost:0",
		ReplicaID:     replicaID,
		KernelPath:    testutil.WriteKernelScript(t, kernelBody),
	})
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { server.Stop() })
	return server.Addr()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { logger.SetDefaultLevel(logger.INFO) })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readOutcomes(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "ts", records[0][0])
	return records[1:]
}

func TestPredict_FailsOverToSecondReplica(t *testing.T) {
	addr := startGateway(t, "replica-b", testutil.KernelOK)
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	out, err := runCLI(t, "predict",
		"--replicas", testutil.UnreachableAddress()+","+addr,
		"--outcome-log", logPath,
		"--input", "1,2,3,4,5")
	require.NoError(t, err)
	assert.Contains(t, out, "Response: 15 ")
	assert.Contains(t, out, "replica: replica-b")
	assert.Contains(t, out, "attempts: 2")

	rows := readOutcomes(t, logPath)
	require.Len(t, rows, 1)
	assert.Equal(t, addr, rows[0][1])
	assert.Equal(t, "true", rows[0][2])
	assert.Equal(t, "predict", rows[0][5])
	assert.Equal(t, "2", rows[0][6])
}

func TestPredict_BadInputIsRejected(t *testing.T) {
	addr := startGateway(t, "replica-a", testutil.KernelOK)
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	_, err := runCLI(t, "predict", "--replicas", addr, "--outcome-log", logPath, "--input", "1,x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")

	rows := readOutcomes(t, logPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0][1])
	assert.Equal(t, "false", rows[0][2])
	assert.Equal(t, "1", rows[0][6])
}

func TestPredict_AllReplicasDown(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	_, err := runCLI(t, "predict",
		"--replicas", testutil.UnreachableAddress(),
		"--max-attempts", "2",
		"--timeout", "200ms",
		"--outcome-log", logPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts exhausted")

	rows := readOutcomes(t, logPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "false", rows[0][2])
	assert.Equal(t, "2", rows[0][6])
}

func TestImage(t *testing.T) {
	addr := startGateway(t, "replica-a", testutil.KernelOK)
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	out, err := runCLI(t, "image", "--replicas", addr, "--outcome-log", logPath,
		"--size", "256", "--mode", "omp", "--threads", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "size=256 mode=omp threads=8")
	assert.Contains(t, out, "algo_ms=12.500")
	assert.Contains(t, out, "replica=replica-a")

	rows := readOutcomes(t, logPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "image", rows[0][5])
}

func TestImage_KernelFailureFailsOver(t *testing.T) {
	broken := startGateway(t, "replica-broken", testutil.KernelBoom)
	healthy := startGateway(t, "replica-healthy", testutil.KernelOK)
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	out, err := runCLI(t, "image", "--replicas", broken+","+healthy, "--outcome-log", logPath, "--mode", "seq")
	require.NoError(t, err)
	assert.Contains(t, out, "replica=replica-healthy")
	assert.Contains(t, out, "algo_ms=7.250")
}

func TestLoadgen(t *testing.T) {
	a := startGateway(t, "replica-a", testutil.KernelOK)
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	out, err := runCLI(t, "loadgen", "--replicas", a, "--outcome-log", logPath,
		"--requests", "5", "--interval", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "sent=5 succeeded=5 failed=0")
	assert.Contains(t, out, a+": 5")
	assert.Len(t, readOutcomes(t, logPath), 5)

	// a second run appends to the same log
	_, err = runCLI(t, "loadgen", "--replicas", a, "--outcome-log", logPath,
		"--requests", "2", "--interval", "0", "--kind", "image", "--size", "64")
	require.NoError(t, err)
	rows := readOutcomes(t, logPath)
	require.Len(t, rows, 7)
	assert.Equal(t, "image", rows[6][5])
}

func TestLoadgen_CountsFailures(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "metrics.csv")

	out, err := runCLI(t, "loadgen", "--replicas", testutil.UnreachableAddress(), "--outcome-log", logPath,
		"--requests", "3", "--interval", "0", "--max-attempts", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "sent=3 succeeded=0 failed=3")
	assert.Len(t, readOutcomes(t, logPath), 3)
}

func TestLoadgen_BadFlags(t *testing.T) {
	_, err := runCLI(t, "loadgen", "--requests", "0")
	assert.ErrorContains(t, err, "--requests must be positive")

	_, err = runCLI(t, "loadgen", "--kind", "video")
	assert.ErrorContains(t, err, "unknown --kind")
}

func TestRoot_FlagErrors(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "metrics.csv")

	_, err := runCLI(t, "predict", "--replicas", "localhost:1", "--etcd", "localhost:2379", "--outcome-log", logPath)
	assert.ErrorContains(t, err, "cannot be used together")

	_, err = runCLI(t, "predict", "--log-level", "loud", "--outcome-log", logPath)
	assert.ErrorContains(t, err, "invalid --log-level")

	_, err = runCLI(t, "predict", "--max-attempts", "0", "--outcome-log", logPath)
	assert.ErrorContains(t, err, "max_attempts must be positive")

	_, err = runCLI(t, "predict", "--config", filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestRoot_ConfigFile(t *testing.T) {
	addr := startGateway(t, "replica-cfg", testutil.KernelOK)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "from-config.csv")

	cfgPath := filepath.Join(dir, "edgegate.yml")
	content := strings.Join([]string{
		"version: 1",
		"client:",
		"  replica_addresses: [" + addr + "]",
		"  max_attempts: 1",
		"  per_attempt_timeout_ms: 2000",
		"  outcome_log: " + logPath,
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	out, err := runCLI(t, "predict", "--config", cfgPath, "--input", "0.5, 0.25")
	require.NoError(t, err)
	assert.Contains(t, out, "Response: 0.75 ")
	assert.Len(t, readOutcomes(t, logPath), 1)
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "edgegate.yml")
	content := "version: 1\nclient:\n  replica_addresses: [a:1, b:2]\n  max_attempts: 5\n  attempt_backoff_ms: 20\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	opts := &options{}
	cmd := newRootCmd()
	predict, _, err := cmd.Find([]string{"predict"})
	require.NoError(t, err)
	require.NoError(t, predict.ParseFlags([]string{"--config", cfgPath, "--timeout", "250ms"}))
	opts.configPath = cfgPath
	opts.timeout = 250 * time.Millisecond

	cfg, err := resolveConfig(predict, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Client.ReplicaAddresses)
	assert.Equal(t, 5, cfg.Client.MaxAttempts)
	assert.Equal(t, 250, cfg.Client.PerAttemptTimeoutMs)
	assert.Equal(t, 20*time.Millisecond, cfg.AttemptBackoff())
	assert.Equal(t, DefaultOutcomeLog, cfg.Client.OutcomeLog)
}

func TestLoadSummary(t *testing.T) {
	s := newLoadSummary()
	for i, ms := range []int{30, 10, 20} {
		s.add(&dispatcher.Result{Success: true, Endpoint: []string{"a", "b", "a"}[i], TotalLatency: time.Duration(ms) * time.Millisecond})
	}
	s.add(&dispatcher.Result{})

	assert.Equal(t, 4, s.Sent)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 20*time.Millisecond, s.percentile(50))
	assert.Equal(t, 30*time.Millisecond, s.percentile(100))
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, s.PerReplica)

	var buf bytes.Buffer
	s.print(&buf)
	assert.Contains(t, buf.String(), "sent=4 succeeded=3 failed=1 p50_ms=20.000")
	assert.Contains(t, buf.String(), "  a: 2\n  b: 1\n")
}
