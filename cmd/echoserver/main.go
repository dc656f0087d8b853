// Command echoserver wires the engine (package tcp), its wire codec, ISN
// generator, and host adapter together end to end: a server Host accepts
// connections and echoes back whatever it reads, a client Host dials
// it, writes a line, and prints the echo. Grounded on the teacher's
// examples/tcpclient/main.go demo shape (dial, write, read, print, done),
// adapted since this module has no IP/Ethernet layer of its own: the two
// Hosts talk over an in-memory LoopbackTransport instead of a real NIC.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/palainp/utcp/hostadapter"
	"github.com/palainp/utcp/isn"
	"github.com/palainp/utcp/tcp"
)

const serverPort = 7 // the classic RFC 862 echo port.

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("DONE")
}

func run() error {
	clientAddr := netip.MustParseAddr("10.0.0.1")
	serverAddr := netip.MustParseAddr("10.0.0.2")
	clientTransport, serverTransport := hostadapter.NewLoopbackPair(clientAddr, serverAddr)

	clientEngine, err := newEngine()
	if err != nil {
		return err
	}
	serverEngine, err := newEngine()
	if err != nil {
		return err
	}

	clientHost := hostadapter.NewHost(hostadapter.Config{Engine: clientEngine, Transport: clientTransport, LocalAddr: clientAddr})
	serverHost := hostadapter.NewHost(hostadapter.Config{Engine: serverEngine, Transport: serverTransport, LocalAddr: serverAddr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clientHost.Run(ctx)
	go serverHost.Run(ctx)

	listener, err := serverHost.Listen(serverPort)
	if err != nil {
		return err
	}
	go serveEcho(listener)

	fmt.Println("dialing...")
	conn, err := hostadapter.Dial(clientHost, serverAddr, serverPort, tcp.ConnConfig{}, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("writing...")
	if _, err := conn.Write([]byte("hello, echo\n")); err != nil {
		return err
	}

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	fmt.Printf("got echo: %q\n", buf[:n])
	return nil
}

func newEngine() (*tcp.Engine, error) {
	gen, err := isn.NewGenerator(nil)
	if err != nil {
		return nil, err
	}
	return tcp.NewEngine(tcp.EngineConfig{RNG: gen.RNG}), nil
}

func serveEcho(l *hostadapter.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go echoLoop(conn)
	}
}

func echoLoop(conn *hostadapter.Conn) {
	defer conn.Close()
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
