package kernel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/knitj/knitj/jupyter"
	"github.com/knitj/knitj/knitjerr"
)

// Manager owns a kernel subprocess's lifecycle: picking ports, writing its
// connection file, launching it, and signaling it for restart/interrupt/
// shutdown. Grounded on the shelling-out idiom (os/exec + errors.Wrap)
// shown throughout _examples/janpfeifer-gonb/kernel/install.go,
// generalized from locating and installing a kernelspec to launching and
// signaling a running kernel process; see DESIGN.md.
type Manager struct {
	command  []string // argv template, "{connection_file}" substituted
	connPath string
	info     jupyter.ConnectionInfo

	cmd *exec.Cmd
}

// NewManager builds a Manager for the given kernel launch command (e.g.
// "python3 -m ipykernel_launcher -f {connection_file}", split on
// whitespace by the caller) and connection-file path.
func NewManager(command []string, connPath string) *Manager {
	return &Manager{command: command, connPath: connPath}
}

// Start picks free localhost ports, writes the connection file, and
// launches the kernel subprocess.
func (m *Manager) Start(ctx context.Context) (jupyter.ConnectionInfo, error) {
	ports, err := freePorts(5)
	if err != nil {
		return m.info, knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "allocating kernel ports")
	}
	m.info = jupyter.ConnectionInfo{
		SignatureScheme: "hmac-sha256",
		Transport:       "tcp",
		IP:              "127.0.0.1",
		Key:             randomKey(),
		ShellPort:       ports[0],
		IoPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HeartBeatPort:   ports[4],
	}
	data, err := json.MarshalIndent(&m.info, "", "  ")
	if err != nil {
		return m.info, knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "encoding connection file")
	}
	if err := os.WriteFile(m.connPath, data, 0o600); err != nil {
		return m.info, knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "writing connection file")
	}
	if err := m.spawn(ctx); err != nil {
		return m.info, err
	}
	return m.info, nil
}

func (m *Manager) spawn(ctx context.Context) error {
	argv := make([]string, len(m.command))
	for i, tok := range m.command {
		argv[i] = strings.ReplaceAll(tok, "{connection_file}", m.connPath)
	}
	if len(argv) == 0 {
		return knitjerr.New(knitjerr.KindKernelLifecycle, "empty kernel command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "starting kernel process")
	}
	m.cmd = cmd
	klog.Infof("kernel: started %q (pid %d)", strings.Join(argv, " "), cmd.Process.Pid)
	return nil
}

// Restart kills and relaunches the kernel process, reusing the same
// connection file and ports so the adapter's correlation map stays
// valid across the restart.
func (m *Manager) Restart(ctx context.Context) error {
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_, _ = m.cmd.Process.Wait()
	}
	return m.spawn(ctx)
}

// Interrupt sends a best-effort SIGINT to the kernel process.
func (m *Manager) Interrupt() error {
	if m.cmd == nil || m.cmd.Process == nil {
		return nil
	}
	return m.cmd.Process.Signal(syscall.SIGINT)
}

// Shutdown terminates the kernel process and removes the connection file.
func (m *Manager) Shutdown() error {
	defer os.Remove(m.connPath)
	if m.cmd == nil || m.cmd.Process == nil {
		return nil
	}
	if err := m.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return m.cmd.Process.Kill()
	}
	_, err := m.cmd.Process.Wait()
	return err
}

func freePorts(n int) ([]int, error) {
	ports := make([]int, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, errors.Wrap(err, "reserving free port")
		}
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
		l.Close()
	}
	return ports, nil
}

func randomKey() string {
	id := make([]byte, 16)
	_, _ = rand.Read(id)
	return hex.EncodeToString(id)
}
