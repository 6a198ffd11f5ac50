package tcpstack

import (
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HandleCommand runs one TCP REPL command and reports whether it was recognised.
func (ts *TCPStack) HandleCommand(w io.Writer, args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "a":
		if len(args) != 2 {
			fmt.Fprintln(w, "Usage: a <port>")
			return true
		}
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			fmt.Fprintln(w, "Invalid port number")
			return true
		}
		ls, err := ts.VListen(uint16(port))
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
			return true
		}
		fmt.Fprintf(w, "Listening on port %d with SID %d\n", port, ls.SID)

	case "c":
		if len(args) != 3 {
			fmt.Fprintln(w, "Usage: c <ip> <port>")
			return true
		}
		addr, err := netip.ParseAddr(args[1])
		if err != nil {
			fmt.Fprintln(w, "Invalid IP address")
			return true
		}
		port, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			fmt.Fprintln(w, "Invalid port number")
			return true
		}
		socket, err := ts.VConnect(addr, uint16(port))
		if err != nil {
			fmt.Fprintln(w, "Connection failed:", err)
			return true
		}
		fmt.Fprintf(w, "Created new socket with SID %d\n", socket.SID)

	case "s":
		if len(args) < 3 {
			fmt.Fprintln(w, "Usage: s <sid> <data>")
			return true
		}
		socket, ok := ts.normalSocketArg(w, args[1])
		if !ok {
			return true
		}
		n, err := socket.VWrite([]byte(strings.Join(args[2:], " ")))
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
			return true
		}
		fmt.Fprintf(w, "Wrote %d bytes\n", n)

	case "r":
		if len(args) != 3 {
			fmt.Fprintln(w, "Usage: r <sid> <numbytes>")
			return true
		}
		socket, ok := ts.normalSocketArg(w, args[1])
		if !ok {
			return true
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			fmt.Fprintln(w, "Invalid byte count")
			return true
		}
		data, err := socket.VRead(n)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(w, "EOF")
			return true
		}
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
			return true
		}
		fmt.Fprintf(w, "Read %d bytes: %s\n", len(data), data)

	case "cl":
		if len(args) != 2 {
			fmt.Fprintln(w, "Usage: cl <sid>")
			return true
		}
		sid, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintln(w, "Invalid SID")
			return true
		}
		socket, err := ts.GetSocketByID(sid)
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
			return true
		}
		if err := socket.VClose(); err != nil {
			fmt.Fprintln(w, "Error:", err)
		}

	case "ab":
		if len(args) != 2 {
			fmt.Fprintln(w, "Usage: ab <sid>")
			return true
		}
		socket, ok := ts.normalSocketArg(w, args[1])
		if !ok {
			return true
		}
		socket.VAbort()

	case "ls":
		handleList(ts, w)

	default:
		return false
	}
	return true
}

// AcceptPending accepts every queued connection and reports each one on w.
func (ts *TCPStack) AcceptPending(w io.Writer) {
	for _, e := range ts.Entries() {
		ls, ok := e.SocketStruct.(*ListenSocket)
		if !ok {
			continue
		}
		for {
			conn, ok := ls.VAccept()
			if !ok {
				break
			}
			fmt.Fprintf(w, "New connection on socket %d => created new socket %d\n", ls.SID, conn.SID)
		}
	}
}

func (ts *TCPStack) normalSocketArg(w io.Writer, arg string) (*NormalSocket, bool) {
	sid, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintln(w, "Invalid SID")
		return nil, false
	}
	socket, err := ts.GetSocketByID(sid)
	if err != nil {
		fmt.Fprintln(w, "Error:", err)
		return nil, false
	}
	normal, ok := socket.(*NormalSocket)
	if !ok {
		fmt.Fprintf(w, "Socket %d is a listening socket\n", sid)
		return nil, false
	}
	return normal, true
}

func handleList(ts *TCPStack, w io.Writer) {
	fmt.Fprintln(w, "SID  LAddr           LPort  RAddr           RPort  Status")
	for _, e := range ts.tcpTable {
		switch socket := e.SocketStruct.(type) {
		case *ListenSocket:
			fmt.Fprintf(w, "%-4d %-15s %-6d %-15s %-6d %s\n", socket.SID, "0.0.0.0", socket.localPort, "0.0.0.0", 0, TCP_LISTEN)
		case *NormalSocket:
			fmt.Fprintf(w, "%-4d %-15s %-6d %-15s %-6d %s\n", socket.SID, socket.LocalAddress, socket.LocalPort, socket.RemoteAddress, socket.RemotePort, socket.State())
		}
	}
}

func PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Available commands:")
	fmt.Fprintln(w, "  li, ln, lr, la      - List interfaces, neighbors, routes, ARP cache")
	fmt.Fprintln(w, "  up/down <ifname>    - Enable or disable an interface")
	fmt.Fprintln(w, "  send <ip> <msg>     - Send a test packet")
	fmt.Fprintln(w, "  a <port>            - Listen on port")
	fmt.Fprintln(w, "  c <ip> <port>       - Connect to ip:port")
	fmt.Fprintln(w, "  s <sid> <data>      - Send on a socket")
	fmt.Fprintln(w, "  r <sid> <numbytes>  - Read from a socket")
	fmt.Fprintln(w, "  cl <sid>            - Close a socket")
	fmt.Fprintln(w, "  ab <sid>            - Abort a connection")
	fmt.Fprintln(w, "  ls                  - List sockets")
}
