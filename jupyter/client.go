package jupyter

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConnectionInfo is the Jupyter kernel connection file shape, written by
// the kernel manager process and read by the client to dial its sockets.
type ConnectionInfo struct {
	SignatureScheme string `json:"signature_scheme"`
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	Key             string `json:"key"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	IoPubPort       int    `json:"iopub_port"`
	HeartBeatPort   int    `json:"hb_port"`
	ShellPort       int    `json:"shell_port"`
}

func (info *ConnectionInfo) shellAddr() string {
	return addr(info.Transport, info.IP, info.ShellPort)
}

func (info *ConnectionInfo) iopubAddr() string {
	return addr(info.Transport, info.IP, info.IoPubPort)
}

func addr(transport, ip string, port int) string {
	return transport + "://" + ip + ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ReadConnectionFile reads and parses a Jupyter kernel connection file.
func ReadConnectionFile(path string) (ConnectionInfo, error) {
	var info ConnectionInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return info, errors.Wrapf(err, "reading kernel connection file %q", path)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, errors.Wrapf(err, "parsing kernel connection file %q", path)
	}
	return info, nil
}

// Received pairs a successfully decoded envelope with its parse error, if
// any; kernel.Adapter's merge loop treats either as a unit of work.
type Received struct {
	Envelope *RawEnvelope
	Err      error
}

// Conn is the low-level wire connection to a running kernel: a shell
// socket for execute_request/reply traffic and an iopub socket for
// streamed broadcast traffic. It is grounded on
// _examples/crackcomm-go-jupyter/jupyter/client.go's Dial/sign/verify
// logic, restructured so that shell and iopub each feed their own
// channel, two independent receive workers, instead of the teacher's
// single per-execution channel keyed by msg id.
type Conn struct {
	shell   zmq4.Socket
	iopub   zmq4.Socket
	signKey []byte
	session string

	shellCh chan Received
	iopubCh chan Received
}

// Dial connects to a kernel's shell (DEALER, allowing multiple outstanding
// executions, unlike a REQ socket, which would force strict
// request/reply alternation and block batch-mode's "dispatch every code
// cell" fan-out) and iopub (SUB, subscribed to everything) sockets, and
// starts their receive loops.
func Dial(ctx context.Context, info *ConnectionInfo) (*Conn, error) {
	shell := zmq4.NewDealer(ctx)
	if err := shell.Dial(info.shellAddr()); err != nil {
		return nil, errors.Wrap(err, "dialing shell socket")
	}
	iopub := zmq4.NewSub(ctx)
	if err := iopub.Dial(info.iopubAddr()); err != nil {
		return nil, errors.Wrap(err, "dialing iopub socket")
	}
	if err := iopub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return nil, errors.Wrap(err, "subscribing iopub socket")
	}
	c := &Conn{
		shell:   shell,
		iopub:   iopub,
		signKey: []byte(info.Key),
		session: uuid.New().String(),
		shellCh: make(chan Received, 16),
		iopubCh: make(chan Received, 16),
	}
	go c.recvLoop(shell, c.shellCh, "shell")
	go c.recvLoop(iopub, c.iopubCh, "iopub")
	return c, nil
}

// recvLoop blocks on Recv forever, decoding each frame set and pushing the
// result onto ch. It terminates (closing ch) when the socket is closed,
// which is what makes Conn.Close observable promptly by a consumer
// select()ing on ch alongside a context's Done() channel.
func (c *Conn) recvLoop(sock zmq4.Socket, ch chan Received, name string) {
	defer close(ch)
	for {
		body, err := sock.Recv()
		if err != nil {
			klog.V(2).Infof("jupyter: %s channel closed: %v", name, err)
			return
		}
		env, err := DecodeRaw(body.Frames, c.signKey)
		if err != nil {
			ch <- Received{Err: errors.Wrapf(err, "decoding %s message", name)}
			continue
		}
		ch <- Received{Envelope: env}
	}
}

// ShellChan is the receive channel for shell-channel traffic (mostly
// execute_reply).
func (c *Conn) ShellChan() <-chan Received { return c.shellCh }

// IopubChan is the receive channel for iopub-channel traffic (stream,
// display_data, execute_result, error, status, execute_input).
func (c *Conn) IopubChan() <-chan Received { return c.iopubCh }

// Session is this connection's session id, used as the Jupyter envelope's
// session field.
func (c *Conn) Session() string { return c.session }

// SendExecute submits an execute_request on the shell channel and returns
// its msg_id, which the caller records against the originating cell hash
// for correlating later replies.
func (c *Conn) SendExecute(req *ExecuteRequestContent) (string, error) {
	env := &Envelope{
		Header:   NewHeader(TypeExecuteRequest, c.session),
		Metadata: map[string]interface{}{},
		Content:  req,
	}
	parts, err := env.Encode(c.signKey)
	if err != nil {
		return "", err
	}
	frames := append([][]byte{[]byte("<IDS|MSG>")}, parts...)
	if err := c.shell.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		return "", errors.Wrap(err, "sending execute_request")
	}
	return env.Header.MsgID, nil
}

// Close tears down both sockets, which unblocks their receive loops.
func (c *Conn) Close() error {
	err1 := c.shell.Close()
	err2 := c.iopub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
