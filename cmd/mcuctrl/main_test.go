package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mcuctrl/internal/api"
	"github.com/nerrad567/mcuctrl/internal/daemon"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/mcu/mcutest"
)

const testAddr = 0x34

// testConfig writes a config file into a temp dir and returns its path.
func testConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := `
mcu:
  bus: 1
  address: "0x34"
thresholds:
  min_pwm: 0
  max_pwm: 100
  default_brightness: 20
  check_interval: 60
daemon:
  pidfile: ` + filepath.Join(dir, "mcuctrl.pid") + `
logging:
  level: error
  output: stderr
` + strings.ReplaceAll(extra, "$DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// fakeDevice routes openClient to a simulated controller for the test.
func fakeDevice(t *testing.T) *mcutest.Device {
	t.Helper()
	dev := mcutest.New(testAddr)
	orig := openClient
	openClient = func(cfg config.MCUConfig, limits mcu.Limits, opts ...mcu.Option) (*mcu.Client, error) {
		return mcu.NewClient(dev, uint16(cfg.Address), limits, opts...), nil
	}
	t.Cleanup(func() { openClient = orig })
	return dev
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("MCUCTRL_CONFIG", "")
	if got := getConfigPath(); got != config.DefaultPath {
		t.Errorf("getConfigPath() = %q, want %q", got, config.DefaultPath)
	}

	t.Setenv("MCUCTRL_CONFIG", "/tmp/custom.yaml")
	if got := getConfigPath(); got != "/tmp/custom.yaml" {
		t.Errorf("getConfigPath() = %q, want %q", got, "/tmp/custom.yaml")
	}
}

func TestVersion_NoConfigNeeded(t *testing.T) {
	t.Setenv("MCUCTRL_CONFIG", "/nonexistent/config.yaml")

	out, err := execute(t, context.Background(), "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "mcuctrl dev") {
		t.Errorf("version output = %q, want it to contain %q", out, "mcuctrl dev")
	}
}

func TestRegisters(t *testing.T) {
	out, err := execute(t, context.Background(), "registers")
	if err != nil {
		t.Fatalf("registers error = %v", err)
	}
	for _, want := range []string{"REGISTER", "brightness", "pwm_min", "keypad_lock", "rdname", "0x08"} {
		if !strings.Contains(out, want) {
			t.Errorf("registers output missing %q:\n%s", want, out)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, context.Background(), "--config", "/nonexistent/config.yaml", "check")
	if !errors.Is(err, config.ErrLoad) {
		t.Errorf("check error = %v, want ErrLoad", err)
	}
}

func TestRead_RequiresTarget(t *testing.T) {
	cfgPath := testConfig(t, "")
	fakeDevice(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no flags", []string{"read", "brightness"}},
		{"no address", []string{"read", "brightness", "-b", "1"}},
		{"no bus", []string{"read", "brightness", "-a", "0x34"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, context.Background(), append([]string{"--config", cfgPath}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), "required flag") {
				t.Errorf("error = %v, want required flag error", err)
			}
		})
	}
}

func TestRead(t *testing.T) {
	cfgPath := testConfig(t, "")
	dev := fakeDevice(t)
	dev.Set("brightness", 20)

	out, err := execute(t, context.Background(), "--config", cfgPath, "read", "brightness", "-b", "1", "-a", "0x34")
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if want := "Read brightness: 20 (0x14)\n"; out != want {
		t.Errorf("read output = %q, want %q", out, want)
	}
}

func TestRead_Errors(t *testing.T) {
	cfgPath := testConfig(t, "")
	fakeDevice(t)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"unknown register", []string{"read", "nonsense", "-b", "1", "-a", "0x34"}, mcu.ErrUnknownCommand},
		{"write-only register", []string{"read", "mute", "-b", "1", "-a", "0x34"}, mcu.ErrUnknownCommand},
		{"bad address", []string{"read", "brightness", "-b", "1", "-a", "0x80"}, mcu.ErrValueRange},
		{"no device", []string{"read", "brightness", "-b", "1", "-a", "0x35"}, mcu.ErrBusIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, context.Background(), append([]string{"--config", cfgPath}, tt.args...)...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnknownCommand_LoggedAtDebug(t *testing.T) {
	fakeDevice(t)

	tests := []struct {
		name string
		args []string
	}{
		{"read", []string{"read", "nonsense", "-b", "1", "-a", "0x34"}},
		{"write", []string{"write", "rdname", "1", "-b", "1", "-a", "0x34"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := testConfig(t, "")
			logPath := filepath.Join(filepath.Dir(cfgPath), "mcuctrl.log")
			raw, err := os.ReadFile(cfgPath)
			if err != nil {
				t.Fatal(err)
			}
			content := strings.Replace(string(raw), "  level: error\n  output: stderr\n",
				"  level: debug\n  format: json\n  output: file\n  file:\n    path: "+logPath+"\n", 1)
			if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}

			_, err = execute(t, context.Background(), append([]string{"--config", cfgPath}, tt.args...)...)
			if !errors.Is(err, mcu.ErrUnknownCommand) {
				t.Fatalf("error = %v, want ErrUnknownCommand", err)
			}
			logged, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("reading log: %v", err)
			}
			if !strings.Contains(string(logged), `"level":"DEBUG"`) || !strings.Contains(string(logged), `"msg":"unknown command"`) {
				t.Errorf("log = %q, want a debug unknown command entry", logged)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	cfgPath := testConfig(t, "")
	dev := fakeDevice(t)

	out, err := execute(t, context.Background(), "--config", cfgPath, "write", "brightness", "0x14", "-b", "1", "-a", "52")
	if err != nil {
		t.Fatalf("write error = %v", err)
	}
	if want := "Wrote brightness: 20 (0x14)\n"; out != want {
		t.Errorf("write output = %q, want %q", out, want)
	}
	if got := dev.Get("brightness"); got != 20 {
		t.Errorf("brightness = %d, want 20", got)
	}
}

func TestWrite_SelfCheckClampsPWM(t *testing.T) {
	cfgPath := testConfig(t, "")
	dev := fakeDevice(t)

	if _, err := execute(t, context.Background(), "--config", cfgPath, "write", "pwm_max", "200", "-b", "1", "-a", "0x34"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if got := dev.Get("pwm_max"); got != 100 {
		t.Errorf("pwm_max = %d, want 100 after self-check", got)
	}
}

func TestWrite_InvalidValue(t *testing.T) {
	cfgPath := testConfig(t, "")
	dev := fakeDevice(t)

	_, err := execute(t, context.Background(), "--config", cfgPath, "write", "brightness", "256", "-b", "1", "-a", "0x34")
	if !errors.Is(err, mcu.ErrValueRange) {
		t.Errorf("write error = %v, want ErrValueRange", err)
	}
	if n := dev.Transfers(); n != 0 {
		t.Errorf("bus transfers = %d, want 0", n)
	}
}

func TestCheck(t *testing.T) {
	cfgPath := testConfig(t, "")
	dev := fakeDevice(t)
	dev.Set("pwm_min", 0)
	dev.Set("pwm_max", 80)
	dev.Set("brightness", 55)

	out, err := execute(t, context.Background(), "--config", cfgPath, "check")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	for _, want := range []string{
		"pwm_max:    80 (0x50)",
		"Corrected pwm_max: 80 (0x50) -> 100 (0x64)",
		"Corrected brightness: 55 (0x37) -> 20 (0x14)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
	if got := dev.Get("brightness"); got != 20 {
		t.Errorf("brightness = %d, want 20", got)
	}
}

func TestCheck_InRange(t *testing.T) {
	cfgPath := testConfig(t, "")
	dev := fakeDevice(t)
	dev.Set("pwm_max", 100)
	dev.Set("brightness", 70)

	out, err := execute(t, context.Background(), "--config", cfgPath, "check")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(out, "Thresholds match configuration") {
		t.Errorf("check output = %q, want match message", out)
	}
	if got := dev.Get("brightness"); got != 70 {
		t.Errorf("brightness = %d, want untouched 70", got)
	}
}

func TestHistory_Disabled(t *testing.T) {
	cfgPath := testConfig(t, "")

	_, err := execute(t, context.Background(), "--config", cfgPath, "history", "passes")
	if !errors.Is(err, errHistoryDisabled) {
		t.Errorf("history error = %v, want errHistoryDisabled", err)
	}
}

func TestHistory_RecordsCLIWrites(t *testing.T) {
	cfgPath := testConfig(t, `
database:
  enabled: true
  path: $DIR/history.db
`)
	dev := fakeDevice(t)
	dev.Set("pwm_max", 100)

	ctx := context.Background()
	if _, err := execute(t, ctx, "--config", cfgPath, "write", "pwm_max", "150", "-b", "1", "-a", "0x34"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if _, err := execute(t, ctx, "--config", cfgPath, "check"); err != nil {
		t.Fatalf("check error = %v", err)
	}

	out, err := execute(t, ctx, "--config", cfgPath, "history", "writes")
	if err != nil {
		t.Fatalf("history writes error = %v", err)
	}
	for _, want := range []string{"primary", "corrective", "cli"} {
		if !strings.Contains(out, want) {
			t.Errorf("history writes missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, ctx, "--config", cfgPath, "history", "passes", "-n", "5")
	if err != nil {
		t.Fatalf("history passes error = %v", err)
	}
	if lines := strings.Count(strings.TrimSpace(out), "\n"); lines != 1 {
		t.Errorf("history passes listed %d rows, want 1:\n%s", lines, out)
	}
}

func TestToken(t *testing.T) {
	t.Setenv("MCUCTRL_API_SECRET", "test-secret")
	cfgPath := testConfig(t, "")

	out, err := execute(t, context.Background(), "--config", cfgPath, "token", "--subject", "panel", "--ttl", "1m")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	subject, err := api.ParseToken("test-secret", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if subject != "panel" {
		t.Errorf("subject = %q, want %q", subject, "panel")
	}
}

func TestToken_NoSecret(t *testing.T) {
	t.Setenv("MCUCTRL_API_SECRET", "")
	cfgPath := testConfig(t, "")

	_, err := execute(t, context.Background(), "--config", cfgPath, "token")
	if !errors.Is(err, api.ErrInvalidToken) {
		t.Errorf("token error = %v, want ErrInvalidToken", err)
	}
}

func TestDaemonStatusAndStop_NotRunning(t *testing.T) {
	cfgPath := testConfig(t, "")
	ctx := context.Background()

	out, err := execute(t, ctx, "--config", cfgPath, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status error = %v", err)
	}
	if strings.TrimSpace(out) != string(daemon.StatusStopped) {
		t.Errorf("daemon status = %q, want %q", out, daemon.StatusStopped)
	}

	if _, err := execute(t, ctx, "--config", cfgPath, "daemon", "stop"); err != nil {
		t.Errorf("daemon stop without pidfile error = %v, want nil", err)
	}
}

func TestDaemonRun(t *testing.T) {
	cfgPath := testConfig(t, "")
	pidfile := filepath.Join(filepath.Dir(cfgPath), "mcuctrl.pid")
	dev := fakeDevice(t)
	dev.Set("pwm_max", 255)
	dev.Set("brightness", 90)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "--config", cfgPath, "daemon", "run")
		done <- err
	}()

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidfile); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if pid, err := daemon.ReadPIDFile(pidfile); err != nil || pid != os.Getpid() {
		t.Errorf("pidfile = %d, %v; want %d", pid, err, os.Getpid())
	}

	if err := <-done; err != nil {
		t.Fatalf("daemon run error = %v", err)
	}
	if _, err := os.Stat(pidfile); !os.IsNotExist(err) {
		t.Errorf("pidfile still present after shutdown: %v", err)
	}
	if got := dev.Get("pwm_max"); got != 100 {
		t.Errorf("pwm_max = %d, want 100", got)
	}
	if got := dev.Get("brightness"); got != 20 {
		t.Errorf("brightness = %d, want 20", got)
	}
}

func TestDaemonRun_AlreadyRunning(t *testing.T) {
	cfgPath := testConfig(t, "")
	pidfile := filepath.Join(filepath.Dir(cfgPath), "mcuctrl.pid")
	fakeDevice(t)

	pf, err := daemon.AcquirePIDFile(pidfile, os.Getpid(), nil)
	if err != nil {
		t.Fatalf("AcquirePIDFile() error = %v", err)
	}
	defer pf.Release() //nolint:errcheck // test cleanup

	_, err = execute(t, context.Background(), "--config", cfgPath, "daemon", "run")
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Errorf("daemon run error = %v, want ErrAlreadyRunning", err)
	}
}
