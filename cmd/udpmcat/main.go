// Command udpmcat is a small demo/debug tool: it joins a multicast group
// and prints every publication it receives or, when -channel is set,
// publishes each line it reads from stdin on that channel instead.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/openmcast/udpm"
)

func main() {
	group := flag.String("group", "239.255.76.67", "multicast group address")
	port := flag.Uint("port", 7667, "multicast port")
	channel := flag.String("channel", "", "if set, publish each stdin line on this channel instead of listening")
	ttl := flag.Uint("ttl", 1, "multicast ttl")
	flag.Parse()

	groupIP := net.ParseIP(*group)
	if groupIP == nil {
		fmt.Fprintf(os.Stderr, "udpmcat: invalid group address %q\n", *group)
		os.Exit(1)
	}

	t, err := udpm.New(groupIP, uint16(*port), udpm.WithTTL(uint8(*ttl)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "udpmcat: %v\n", err)
		os.Exit(1)
	}
	defer t.Close()

	if *channel != "" {
		publish(t, *channel)
		return
	}
	listen(t)
}

func publish(t *udpm.Transport, channel string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := t.Send(channel, scanner.Bytes()); err != nil {
			slog.Error("udpmcat: send failed", "error", err)
		}
	}
}

func listen(t *udpm.Transport) {
	for {
		msg, err := t.Recv(5 * time.Second)
		if err != nil {
			if err == udpm.ErrAgain {
				continue
			}
			slog.Error("udpmcat: recv failed", "error", err)
			return
		}
		fmt.Printf("[%s] %s: %s\n", msg.RecvUtime.Format(time.RFC3339Nano), msg.Channel, msg.Payload)
	}
}
