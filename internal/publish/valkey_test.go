package publish

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-slowpeers/internal/config"
)

// fakeValkey answers PING, AUTH, SELECT and SET and records every command.
type fakeValkey struct {
	lis      net.Listener
	password string

	mu       sync.Mutex
	commands [][]string
}

func newFakeValkey(t *testing.T, password string) *fakeValkey {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeValkey{lis: lis, password: password}
	go f.serve()
	t.Cleanup(func() { _ = lis.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.lis.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	authed := f.password == ""
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, args)
		f.mu.Unlock()

		var reply string
		switch strings.ToUpper(args[0]) {
		case "PING":
			reply = "+PONG\r\n"
		case "AUTH":
			if args[len(args)-1] == f.password {
				authed = true
				reply = "+OK\r\n"
			} else {
				reply = "-WRONGPASS invalid password\r\n"
			}
		case "SELECT", "SET":
			if !authed {
				reply = "-NOAUTH Authentication required\r\n"
			} else {
				reply = "+OK\r\n"
			}
		default:
			reply = "-ERR unknown command\r\n"
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

func (f *fakeValkey) lastCommand() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(header, "*") {
		return nil, fmt.Errorf("unexpected header %q", header)
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeLine[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestValkeyProviderSet(t *testing.T) {
	server := newFakeValkey(t, "secret")
	cfg := config.PublishConfig{Addr: server.lis.Addr().String(), Username: "tracker", Password: "secret", DB: 2}

	p, err := NewValkeyProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Set(context.Background(), "mirador:slowpeers:snapshot", []byte(`[{"slowNode":"dn1"}]`), 1500*time.Millisecond))
	assert.Equal(t, []string{"SET", "mirador:slowpeers:snapshot", `[{"slowNode":"dn1"}]`, "PX", "1500"}, server.lastCommand())
}

func TestValkeyProviderRejectsBadPassword(t *testing.T) {
	server := newFakeValkey(t, "secret")
	cfg := config.PublishConfig{Addr: server.lis.Addr().String(), Password: "wrong"}

	_, err := NewValkeyProvider(context.Background(), cfg)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Contains(t, serverErr.Message, "WRONGPASS")
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	_, err := NewValkeyProvider(context.Background(), config.PublishConfig{})
	assert.Error(t, err)
}
